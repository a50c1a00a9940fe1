package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigcore/pkg/audit"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert DSA/ECDSA signatures between DER and plain form",
	Long: `Convert DSA-family signatures between the DER SEQUENCE { r, s } encoding
and the plain r||s concatenation used by BSI TR-03111, COSE and JWS.`,
}

var convertToDERCmd = &cobra.Command{
	Use:   "to-der",
	Short: "Convert a plain r||s signature to DER",
	Long: `Convert a plain r||s signature to DER. The input length must be even.

Examples:
  sigcore convert to-der --in sig.plain --out sig.der`,
	Args: cobra.NoArgs,
	RunE: runConvertToDER,
}

var convertToPlainCmd = &cobra.Command{
	Use:   "to-plain",
	Short: "Convert a DER signature to plain r||s",
	Long: `Convert a DER signature to plain r||s. Each integer is left-padded to
ceil(key-bits/8) bytes.

Examples:
  sigcore convert to-plain --in sig.der --key-bits 256 --out sig.plain`,
	Args: cobra.NoArgs,
	RunE: runConvertToPlain,
}

var (
	convertInput   string
	convertHex     string
	convertKeyBits int
	convertOutput  string
	convertFormat  string
)

func init() {
	for _, c := range []*cobra.Command{convertToDERCmd, convertToPlainCmd} {
		c.Flags().StringVar(&convertInput, "in", "", "Signature file ('-' for stdin)")
		c.Flags().StringVar(&convertHex, "hex", "", "Signature in hex (instead of --in)")
		c.Flags().StringVarP(&convertOutput, "out", "o", "", "Output file (default: print to stdout)")
		c.Flags().StringVar(&convertFormat, "format", "hex", "Stdout format: hex or base64")
	}
	convertToPlainCmd.Flags().IntVar(&convertKeyBits, "key-bits", 0, "Group order size in bits (required)")
	_ = convertToPlainCmd.MarkFlagRequired("key-bits")

	convertCmd.AddCommand(convertToDERCmd)
	convertCmd.AddCommand(convertToPlainCmd)
}

func readSignatureInput(cmd *cobra.Command) ([]byte, error) {
	switch {
	case convertInput != "" && convertHex != "":
		return nil, fmt.Errorf("--in and --hex are mutually exclusive")
	case convertHex != "":
		return decodeHex(convertHex)
	case convertInput != "":
		return readInput(cmd, convertInput)
	default:
		return nil, fmt.Errorf("one of --in or --hex is required")
	}
}

func runConvertToDER(cmd *cobra.Command, args []string) error {
	sig, err := readSignatureInput(cmd)
	if err != nil {
		return err
	}

	der, err := pkicrypto.DSAPlainToDER(sig)
	if aerr := audit.LogConvert("der", len(sig)*4, len(der), err); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd, convertOutput, convertFormat, der)
}

func runConvertToPlain(cmd *cobra.Command, args []string) error {
	if convertKeyBits <= 0 {
		return fmt.Errorf("--key-bits must be positive")
	}
	sig, err := readSignatureInput(cmd)
	if err != nil {
		return err
	}

	plain, err := pkicrypto.DSADERToPlain(sig, convertKeyBits)
	if aerr := audit.LogConvert("plain", convertKeyBits, len(plain), err); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd, convertOutput, convertFormat, plain)
}
