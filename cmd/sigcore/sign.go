package main

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/spf13/cobra"

	hsm "github.com/remiblancher/sigcore/internal/crypto"
	"github.com/remiblancher/sigcore/pkg/audit"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a message",
	Long: `Sign a message with a private key file or an HSM key.

RSA keys are signed with EMSA-PKCS1-v1_5 or EMSA-PSS, EC keys with ECDSA
(DER) or plain ECDSA (r||s). Ed25519 and Ed448 sign the message directly.
X25519 and X448 keys produce a DHPOP value for the certificate given with
--peer-cert.

When --algorithm is omitted the configured default for the key family is
used.

Examples:
  sigcore sign --key rsa.pem --in message.txt --out sig.bin
  sigcore sign --key ec.pem --algorithm SHA256withPlainECDSA --in message.txt --out sig.bin
  sigcore sign --key x25519.pem --peer-cert verifier.crt --in message.txt --out pop.bin
  sigcore sign --hsm-config hsm.yaml --key-label signing-key --in message.txt --out sig.bin`,
	Args: cobra.NoArgs,
	RunE: runSign,
}

var (
	signKeyPath   string
	signHSMConfig string
	signKeyLabel  string
	signKeyID     string
	signAlgorithm string
	signPeerCert  string
	signInput     string
	signOutput    string
	signFormat    string
)

func init() {
	flags := signCmd.Flags()
	flags.StringVar(&signKeyPath, "key", "", "Private key PEM file")
	flags.StringVar(&signHSMConfig, "hsm-config", "", "HSM configuration file (instead of --key)")
	flags.StringVar(&signKeyLabel, "key-label", "", "HSM key label (CKA_LABEL)")
	flags.StringVar(&signKeyID, "key-id", "", "HSM key ID (CKA_ID, hex)")
	flags.StringVarP(&signAlgorithm, "algorithm", "a", "", "Signature algorithm (default: per key family)")
	flags.StringVar(&signPeerCert, "peer-cert", "", "Verifier certificate for DHPOP")
	flags.StringVar(&signInput, "in", "", "Message file ('-' for stdin)")
	flags.StringVarP(&signOutput, "out", "o", "", "Output file (default: print to stdout)")
	flags.StringVar(&signFormat, "format", "hex", "Stdout format: hex or base64")

	_ = signCmd.MarkFlagRequired("in")
	signCmd.MarkFlagsMutuallyExclusive("key", "hsm-config")
	signCmd.MarkFlagsOneRequired("key", "hsm-config")
}

func runSign(cmd *cobra.Command, args []string) error {
	message, err := readInput(cmd, signInput)
	if err != nil {
		return err
	}

	var (
		sig    []byte
		alg    pkicrypto.SignAlgo
		keyRef string
	)
	if signHSMConfig != "" {
		keyRef = signHSMConfig
		sig, alg, err = signWithHSM(message)
	} else {
		keyRef = signKeyPath
		sig, alg, err = signWithKeyFile(message)
	}

	if aerr := audit.LogSign(audit.EventSigSign, keyRef, alg.Name(), err); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd, signOutput, signFormat, sig)
}

func signWithKeyFile(message []byte) ([]byte, pkicrypto.SignAlgo, error) {
	key, err := loadPrivateKey(signKeyPath)
	if err != nil {
		return nil, pkicrypto.SignAlgo{}, err
	}
	pub, err := publicOf(key)
	if err != nil {
		return nil, pkicrypto.SignAlgo{}, err
	}
	alg, err := resolveSignAlgo(signAlgorithm, pub)
	if err != nil {
		return nil, pkicrypto.SignAlgo{}, err
	}

	var peer *peerCertificate
	if alg.Family() == pkicrypto.SignDHPOP {
		if signPeerCert == "" {
			return nil, alg, fmt.Errorf("--peer-cert is required for %s", alg)
		}
		if peer, err = loadPeerCertificate(signPeerCert); err != nil {
			return nil, alg, err
		}
	}

	sig, err := signMessage(key, alg, message, peer)
	return sig, alg, err
}

func signWithHSM(message []byte) ([]byte, pkicrypto.SignAlgo, error) {
	hsmCfg, err := hsm.LoadHSMConfig(signHSMConfig)
	if err != nil {
		return nil, pkicrypto.SignAlgo{}, err
	}
	pkcs11Cfg, err := hsmCfg.ToPKCS11Config(signKeyLabel, signKeyID)
	if err != nil {
		return nil, pkicrypto.SignAlgo{}, err
	}

	signer, err := hsm.NewPKCS11Signer(*pkcs11Cfg, dispatcher.Registry())
	if aerr := audit.LogKeyAccessed(pkcs11Cfg.ModulePath, pkcs11Cfg.KeyLabel, err); aerr != nil {
		return nil, pkicrypto.SignAlgo{}, aerr
	}
	if err != nil {
		return nil, pkicrypto.SignAlgo{}, fmt.Errorf("failed to open HSM key: %w", err)
	}
	defer func() { _ = signer.Close() }()

	alg, err := resolveSignAlgo(signAlgorithm, signer.Public())
	if err != nil {
		return nil, pkicrypto.SignAlgo{}, err
	}
	sig, err := signer.SignDigest(rand.Reader, alg, alg.Hash().Hash(message))
	return sig, alg, err
}

// peerCertificate is the other party of a DHPOP exchange.
type peerCertificate struct {
	pub        crypto.PublicKey
	rawSubject []byte
}

func loadPeerCertificate(path string) (*peerCertificate, error) {
	certs, err := loadCertificates(path)
	if err != nil {
		return nil, err
	}
	pub, err := loadPublicKey(path)
	if err != nil {
		return nil, err
	}
	return &peerCertificate{pub: pub, rawSubject: certs[0].RawSubject}, nil
}

func publicOf(key crypto.PrivateKey) (crypto.PublicKey, error) {
	switch k := key.(type) {
	case *pkicrypto.X448PrivateKey:
		return k.PublicKey(), nil
	case interface{ Public() crypto.PublicKey }:
		return k.Public(), nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}

// signMessage signs message with a software key.
func signMessage(key crypto.PrivateKey, alg pkicrypto.SignAlgo, message []byte, peer *peerCertificate) ([]byte, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		signer, err := pkicrypto.NewRSASigner(dispatcher.Registry(), k)
		if err != nil {
			return nil, err
		}
		return signer.SignMessage(rand.Reader, alg, message)

	case *ecdsa.PrivateKey:
		if alg.Family() != pkicrypto.SignECDSA && alg.Family() != pkicrypto.SignPlainECDSA {
			return nil, fmt.Errorf("algorithm %s cannot be used with an EC key", alg)
		}
		der, err := ecdsa.SignASN1(rand.Reader, k, alg.Hash().Hash(message))
		if err != nil {
			return nil, err
		}
		if alg.Family() == pkicrypto.SignPlainECDSA {
			return pkicrypto.DSADERToPlain(der, k.Curve.Params().BitSize)
		}
		return der, nil

	case ed25519.PrivateKey:
		if alg.Name() != pkicrypto.Ed25519.Name() {
			return nil, fmt.Errorf("algorithm %s cannot be used with an Ed25519 key", alg)
		}
		return ed25519.Sign(k, message), nil

	case ed448.PrivateKey:
		if alg.Name() != pkicrypto.Ed448.Name() {
			return nil, fmt.Errorf("algorithm %s cannot be used with an Ed448 key", alg)
		}
		return ed448.Sign(k, message, ""), nil

	case *ecdh.PrivateKey, *pkicrypto.X448PrivateKey:
		if peer == nil {
			return nil, fmt.Errorf("a peer certificate is required for %s", alg)
		}
		return pkicrypto.ComputeDHPOP(alg, key, peer.pub, peer.rawSubject, message)

	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}
