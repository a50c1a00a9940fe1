package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigcore/pkg/audit"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build RSA signature encoding blocks",
	Long: `Build the encoded message that an RSA private-key operation signs.

The digest is given in hex with --digest, or computed over --in.`,
}

var encodePKCS1Cmd = &cobra.Command{
	Use:   "pkcs1",
	Short: "EMSA-PKCS1-v1_5 encoding",
	Long: `Build an EMSA-PKCS1-v1_5 block (RFC 8017 section 9.2):

  0x00 || 0x01 || 0xFF... || 0x00 || DigestInfo

Examples:
  sigcore encode pkcs1 --hash SHA256 --in message.txt --modulus-bits 2048
  sigcore encode pkcs1 --digest-info 3031300d...  --modulus-bits 2048 --out em.bin`,
	Args: cobra.NoArgs,
	RunE: runEncodePKCS1,
}

var encodePSSCmd = &cobra.Command{
	Use:   "pss",
	Short: "EMSA-PSS encoding",
	Long: `Build an EMSA-PSS block (RFC 8017 section 9.1) with a random salt.

With SHAKE128 or SHAKE256 the MGF digest must be the same SHAKE and the salt
as long as the digest (RFC 8702).

Examples:
  sigcore encode pss --hash SHA256 --in message.txt --modulus-bits 2048
  sigcore encode pss --hash SHAKE256 --digest <hex> --modulus-bits 3072`,
	Args: cobra.NoArgs,
	RunE: runEncodePSS,
}

var (
	encodeHash        string
	encodeMGFHash     string
	encodeDigest      string
	encodeDigestInfo  string
	encodeInput       string
	encodeModulusBits int
	encodeSaltLen     int
	encodeOutput      string
	encodeFormat      string
)

func init() {
	for _, c := range []*cobra.Command{encodePKCS1Cmd, encodePSSCmd} {
		c.Flags().StringVar(&encodeHash, "hash", "SHA256", "Digest algorithm")
		c.Flags().StringVar(&encodeDigest, "digest", "", "Digest value in hex")
		c.Flags().StringVar(&encodeInput, "in", "", "File to hash ('-' for stdin)")
		c.Flags().IntVar(&encodeModulusBits, "modulus-bits", 0, "RSA modulus length in bits (required)")
		c.Flags().StringVarP(&encodeOutput, "out", "o", "", "Output file (default: print to stdout)")
		c.Flags().StringVar(&encodeFormat, "format", "hex", "Stdout format: hex or base64")
		_ = c.MarkFlagRequired("modulus-bits")
	}
	encodePKCS1Cmd.Flags().StringVar(&encodeDigestInfo, "digest-info", "", "DER DigestInfo in hex (replaces --hash/--digest)")
	encodePSSCmd.Flags().StringVar(&encodeMGFHash, "mgf-hash", "", "MGF1 digest (default: --hash)")
	encodePSSCmd.Flags().IntVar(&encodeSaltLen, "salt-len", -1, "Salt length in bytes (default: digest size)")

	encodeCmd.AddCommand(encodePKCS1Cmd)
	encodeCmd.AddCommand(encodePSSCmd)
}

// encodeDigestValue returns the digest from --digest or by hashing --in.
func encodeDigestValue(cmd *cobra.Command, h pkicrypto.HashAlgo) ([]byte, error) {
	switch {
	case encodeDigest != "" && encodeInput != "":
		return nil, fmt.Errorf("--digest and --in are mutually exclusive")
	case encodeDigest != "":
		return decodeHex(encodeDigest)
	case encodeInput != "":
		data, err := readInput(cmd, encodeInput)
		if err != nil {
			return nil, err
		}
		return h.Hash(data), nil
	default:
		return nil, fmt.Errorf("one of --digest or --in is required")
	}
}

func runEncodePKCS1(cmd *cobra.Command, args []string) error {
	var (
		em       []byte
		hashName string
		err      error
	)

	if encodeDigestInfo != "" {
		if encodeDigest != "" || encodeInput != "" {
			return fmt.Errorf("--digest-info cannot be combined with --digest or --in")
		}
		di, derr := decodeHex(encodeDigestInfo)
		if derr != nil {
			return derr
		}
		em, err = pkicrypto.EncodePKCS1v15DigestInfo(di, encodeModulusBits)
	} else {
		reg := pkicrypto.DefaultRegistry()
		h, lerr := reg.Lookup(encodeHash)
		if lerr != nil {
			return lerr
		}
		hashName = h.String()
		digest, derr := encodeDigestValue(cmd, h)
		if derr != nil {
			return derr
		}
		em, err = reg.EncodePKCS1v15(digest, h, encodeModulusBits)
	}

	if aerr := audit.LogEncode(audit.EventEncodePKCS1, hashName, encodeModulusBits, 0, err); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd, encodeOutput, encodeFormat, em)
}

func runEncodePSS(cmd *cobra.Command, args []string) error {
	reg := pkicrypto.DefaultRegistry()
	h, err := reg.Lookup(encodeHash)
	if err != nil {
		return err
	}
	mgf := h
	if encodeMGFHash != "" {
		if mgf, err = reg.Lookup(encodeMGFHash); err != nil {
			return err
		}
	}
	saltLen := encodeSaltLen
	if saltLen < 0 {
		saltLen = h.Size()
	}

	digest, err := encodeDigestValue(cmd, h)
	if err != nil {
		return err
	}

	em, err := pkicrypto.EncodePSS(h, digest, mgf, saltLen, encodeModulusBits, nil)
	if aerr := audit.LogEncode(audit.EventEncodePSS, h.String(), encodeModulusBits, saltLen, err); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd, encodeOutput, encodeFormat, em)
}
