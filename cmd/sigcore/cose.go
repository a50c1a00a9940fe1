package main

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	gocose "github.com/veraison/go-cose"

	hsm "github.com/remiblancher/sigcore/internal/crypto"
	"github.com/remiblancher/sigcore/pkg/audit"
	"github.com/remiblancher/sigcore/pkg/cose"
)

var coseCmd = &cobra.Command{
	Use:   "cose",
	Short: "COSE_Sign1 operations (RFC 9052)",
	Long: `Sign and verify COSE_Sign1 messages.

ECDSA signatures are carried in plain r||s form (ES256, ES384, ES512).
RSA uses PS256-PS512 or RS256-RS512, Ed25519 and Ed448 use EdDSA.

Examples:
  sigcore cose sign --data file.txt --key signer.key --cert signer.crt -o signed.cbor
  sigcore cose verify signed.cbor --cert signer.crt
  sigcore cose info signed.cbor`,
}

var coseSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Create a COSE_Sign1 message",
	Long: `Create a COSE_Sign1 message over a data file.

The COSE algorithm is derived from the key unless --algorithm is given.
With --cert the kid header is set to the certificate fingerprint, and
--include-certs also embeds the certificate as x5chain.

Examples:
  sigcore cose sign --data document.pdf --key signer.key -o doc.cbor
  sigcore cose sign --data document.pdf --key rsa.key --algorithm RS256 -o doc.cbor
  sigcore cose sign --data document.pdf --hsm-config hsm.yaml --key-label cose-key -o doc.cbor`,
	Args: cobra.NoArgs,
	RunE: runCOSESign,
}

var coseVerifyCmd = &cobra.Command{
	Use:   "verify <message-file>",
	Short: "Verify a COSE_Sign1 message",
	Long: `Verify a COSE_Sign1 message.

The verification key is taken from --pub, --cert, or the x5chain header of
the message. With --ca the signing certificate is also checked against the
given roots; a chain failure is reported as a warning.

Examples:
  sigcore cose verify signed.cbor --cert signer.crt
  sigcore cose verify signed.cbor --ca root.crt`,
	Args: cobra.ExactArgs(1),
	RunE: runCOSEVerify,
}

var coseInfoCmd = &cobra.Command{
	Use:   "info <message-file>",
	Short: "Display COSE_Sign1 message information",
	Args:  cobra.ExactArgs(1),
	RunE:  runCOSEInfo,
}

var (
	coseSignData         string
	coseSignKey          string
	coseSignCert         string
	coseSignAlgorithm    string
	coseSignContentType  string
	coseSignIncludeCerts bool
	coseSignHSMConfig    string
	coseSignKeyLabel     string
	coseSignKeyID        string
	coseSignOutput       string

	coseVerifyCert string
	coseVerifyPub  string
	coseVerifyCA   string
)

func init() {
	coseSignCmd.Flags().StringVar(&coseSignData, "data", "", "Data file to sign (required)")
	coseSignCmd.Flags().StringVar(&coseSignKey, "key", "", "Signer private key (PEM)")
	coseSignCmd.Flags().StringVar(&coseSignCert, "cert", "", "Signer certificate (PEM)")
	coseSignCmd.Flags().StringVar(&coseSignAlgorithm, "algorithm", "", "COSE algorithm (ES256, PS256, RS256, EdDSA, ...)")
	coseSignCmd.Flags().StringVar(&coseSignContentType, "content-type", "", "Content type header")
	coseSignCmd.Flags().BoolVar(&coseSignIncludeCerts, "include-certs", false, "Include certificate in message")
	coseSignCmd.Flags().StringVar(&coseSignHSMConfig, "hsm-config", "", "HSM configuration file (YAML)")
	coseSignCmd.Flags().StringVar(&coseSignKeyLabel, "key-label", "", "HSM key label (CKA_LABEL)")
	coseSignCmd.Flags().StringVar(&coseSignKeyID, "key-id", "", "HSM key ID (CKA_ID, hex)")
	coseSignCmd.Flags().StringVarP(&coseSignOutput, "out", "o", "", "Output file (required)")
	_ = coseSignCmd.MarkFlagRequired("data")
	_ = coseSignCmd.MarkFlagRequired("out")
	coseSignCmd.MarkFlagsMutuallyExclusive("key", "hsm-config")
	coseSignCmd.MarkFlagsOneRequired("key", "hsm-config")

	coseVerifyCmd.Flags().StringVar(&coseVerifyCert, "cert", "", "Signer certificate (PEM)")
	coseVerifyCmd.Flags().StringVar(&coseVerifyPub, "pub", "", "Signer public key (PEM)")
	coseVerifyCmd.Flags().StringVar(&coseVerifyCA, "ca", "", "CA certificate(s) for chain verification")
	coseVerifyCmd.MarkFlagsMutuallyExclusive("cert", "pub")

	coseCmd.AddCommand(coseSignCmd)
	coseCmd.AddCommand(coseVerifyCmd)
	coseCmd.AddCommand(coseInfoCmd)
}

func runCOSESign(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(coseSignData)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}

	config := &cose.MessageConfig{
		ContentType:      coseSignContentType,
		IncludeCertChain: coseSignIncludeCerts,
	}
	if coseSignAlgorithm != "" {
		if config.Algorithm, err = cose.ParseAlgorithm(coseSignAlgorithm); err != nil {
			return err
		}
	}
	if coseSignCert != "" {
		certs, err := loadCertificates(coseSignCert)
		if err != nil {
			return fmt.Errorf("failed to load certificate: %w", err)
		}
		config.Certificate = certs[0]
	}

	keyRef := coseSignKey
	if coseSignHSMConfig != "" {
		keyRef = coseSignHSMConfig
		signer, err := openHSMSigner(coseSignHSMConfig, coseSignKeyLabel, coseSignKeyID)
		if err != nil {
			return err
		}
		defer func() { _ = signer.Close() }()
		config.Signer = signer
	} else {
		key, err := loadPrivateKey(coseSignKey)
		if err != nil {
			return err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return fmt.Errorf("key type %T cannot sign COSE messages", key)
		}
		config.Signer = signer
	}

	output, err := cose.IssueSign1(cmd.Context(), data, config)
	if aerr := audit.LogSign(audit.EventCOSESign, keyRef, coseSignAlgorithm, err); aerr != nil {
		return aerr
	}
	if err != nil {
		return fmt.Errorf("failed to create COSE message: %w", err)
	}

	if err := os.WriteFile(coseSignOutput, output, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created COSE_Sign1 message: %s\n", coseSignOutput)
	return nil
}

// openHSMSigner opens a PKCS#11 key and records the access.
func openHSMSigner(configPath, keyLabel, keyID string) (*hsm.PKCS11Signer, error) {
	hsmCfg, err := hsm.LoadHSMConfig(configPath)
	if err != nil {
		return nil, err
	}
	pkcs11Cfg, err := hsmCfg.ToPKCS11Config(keyLabel, keyID)
	if err != nil {
		return nil, err
	}
	signer, err := hsm.NewPKCS11Signer(*pkcs11Cfg, dispatcher.Registry())
	if aerr := audit.LogKeyAccessed(pkcs11Cfg.ModulePath, pkcs11Cfg.KeyLabel, err); aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open HSM key: %w", err)
	}
	return signer, nil
}

func runCOSEVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read message file: %w", err)
	}

	config := &cose.VerifyConfig{Dispatcher: dispatcher}
	switch {
	case coseVerifyPub != "":
		if config.PublicKey, err = loadPublicKey(coseVerifyPub); err != nil {
			return err
		}
	case coseVerifyCert != "":
		certs, err := loadCertificates(coseVerifyCert)
		if err != nil {
			return fmt.Errorf("failed to load certificate: %w", err)
		}
		config.Certificate = certs[0]
	}
	if coseVerifyCA != "" {
		roots, err := loadCertificates(coseVerifyCA)
		if err != nil {
			return fmt.Errorf("failed to load CA certificates: %w", err)
		}
		config.Roots = x509.NewCertPool()
		for _, c := range roots {
			config.Roots.AddCert(c)
		}
	}

	result, err := cose.VerifySign1(data, config)
	algName := ""
	if result != nil {
		algName = result.SignAlgo.Name()
	}
	if aerr := audit.LogVerify(audit.EventCOSEVerify, "", algName, err); aerr != nil {
		return aerr
	}
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "COSE_Sign1 signature valid")
	fmt.Fprintf(out, "  Algorithm: %s (%s)\n", cose.AlgorithmName(result.Algorithm), result.SignAlgo)
	if result.Certificate != nil {
		fmt.Fprintf(out, "  Signer:    %s\n", result.Certificate.Subject)
	}
	fmt.Fprintf(out, "  Payload:   %d bytes\n", len(result.Payload))
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "  Warning:   %s\n", w)
	}
	return nil
}

func runCOSEInfo(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read message file: %w", err)
	}
	msg, err := cose.ParseSign1(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "COSE_Sign1 Message")
	fmt.Fprintf(out, "  Algorithm:    %s\n", algorithmLabel(msg.Algorithm))
	if len(msg.KeyID) > 0 {
		fmt.Fprintf(out, "  Key ID:       %x\n", msg.KeyID)
	}
	if msg.ContentType != "" {
		fmt.Fprintf(out, "  Content Type: %s\n", msg.ContentType)
	}
	if msg.Certificate != nil {
		fmt.Fprintf(out, "  Certificate:  %s\n", msg.Certificate.Subject)
	}
	fmt.Fprintf(out, "  Payload:      %d bytes\n", len(msg.Payload))
	fmt.Fprintf(out, "  Signature:    %d bytes\n", len(msg.Signature))
	return nil
}

func algorithmLabel(alg gocose.Algorithm) string {
	return fmt.Sprintf("%s (%d)", cose.AlgorithmName(alg), int64(alg))
}
