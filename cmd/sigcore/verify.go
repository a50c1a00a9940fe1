package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigcore/pkg/audit"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signature",
	Long: `Verify a signature over a message with a public key or certificate.

The verification strategy is chosen from the key, or from --key-algorithm
when the key is ambiguous. DHPOP signatures made with X25519 or X448 keys
also need the verifier's own static key and certificate, given with
--dhpop-key/--dhpop-cert or in the configuration file.

Examples:
  sigcore verify --pub rsa.pub --in message.txt --signature sig.bin
  sigcore verify --pub ec.crt --algorithm SHA256withPlainECDSA --in message.txt --signature sig.bin
  sigcore verify --pub x25519.crt --dhpop-key me.key --dhpop-cert me.crt --in message.txt --signature pop.bin`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

var (
	verifyPubPath      string
	verifyAlgorithm    string
	verifyKeyAlgorithm string
	verifyInput        string
	verifySignature    string
	verifySigHex       string
	verifyDHPOPKey     string
	verifyDHPOPCert    string
)

func init() {
	flags := verifyCmd.Flags()
	flags.StringVar(&verifyPubPath, "pub", "", "Public key or certificate PEM file (required)")
	flags.StringVarP(&verifyAlgorithm, "algorithm", "a", "", "Signature algorithm (default: per key family)")
	flags.StringVar(&verifyKeyAlgorithm, "key-algorithm", "", "Key algorithm: RSA, DSA, EC, Ed25519, Ed448, X25519, X448")
	flags.StringVar(&verifyInput, "in", "", "Message file ('-' for stdin)")
	flags.StringVar(&verifySignature, "signature", "", "Signature file")
	flags.StringVar(&verifySigHex, "signature-hex", "", "Signature in hex (instead of --signature)")
	flags.StringVar(&verifyDHPOPKey, "dhpop-key", "", "Own static X25519/X448 private key for DHPOP")
	flags.StringVar(&verifyDHPOPCert, "dhpop-cert", "", "Certificate of --dhpop-key")

	_ = verifyCmd.MarkFlagRequired("pub")
	_ = verifyCmd.MarkFlagRequired("in")
	verifyCmd.MarkFlagsMutuallyExclusive("signature", "signature-hex")
	verifyCmd.MarkFlagsOneRequired("signature", "signature-hex")
	verifyCmd.MarkFlagsRequiredTogether("dhpop-key", "dhpop-cert")
}

func runVerify(cmd *cobra.Command, args []string) error {
	pub, err := loadPublicKey(verifyPubPath)
	if err != nil {
		return err
	}
	message, err := readInput(cmd, verifyInput)
	if err != nil {
		return err
	}
	var sig []byte
	if verifySigHex != "" {
		sig, err = decodeHex(verifySigHex)
	} else {
		sig, err = readInput(cmd, verifySignature)
	}
	if err != nil {
		return err
	}

	aux, err := loadDHPOPPair()
	if err != nil {
		return err
	}

	var v pkicrypto.Verifier
	if verifyKeyAlgorithm != "" {
		v, err = dispatcher.Resolve(verifyKeyAlgorithm, pub, aux)
	} else {
		v, err = dispatcher.ResolveKey(pub, aux)
	}
	if err != nil {
		return err
	}

	alg, err := resolveSignAlgo(verifyAlgorithm, pub)
	if err != nil {
		return err
	}

	verr := v.Verify(alg, message, sig)
	if aerr := audit.LogVerify(audit.EventSigVerify, v.Family().String(), alg.Name(), verr); aerr != nil {
		return aerr
	}

	out := cmd.OutOrStdout()
	if verr != nil {
		if errors.Is(verr, pkicrypto.ErrVerification) {
			fmt.Fprintf(out, "Signature INVALID (%s, %s key)\n", alg, v.Family())
		}
		return verr
	}
	fmt.Fprintf(out, "Signature valid (%s, %s key)\n", alg, v.Family())
	return nil
}

// loadDHPOPPair returns the static key pair from the flags, or from the
// configuration file when no flag is set.
func loadDHPOPPair() (*pkicrypto.StaticKeyCertPair, error) {
	if verifyDHPOPKey == "" {
		return cfg.LoadDHPOP()
	}

	key, err := loadPrivateKey(verifyDHPOPKey)
	if err != nil {
		return nil, err
	}
	certs, err := loadCertificates(verifyDHPOPCert)
	if err != nil {
		return nil, err
	}
	return &pkicrypto.StaticKeyCertPair{PrivateKey: key, Certificate: certs[0]}, nil
}
