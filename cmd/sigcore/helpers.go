package main

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigcore/pkg/audit"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// decodeHex accepts hex with optional colons or whitespace.
func decodeHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(":", "", " ", "", "\n", "", "\t", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// writeOutput writes data to path, or prints it to stdout in format
// ("hex" or "base64") when path is empty.
func writeOutput(cmd *cobra.Command, path, format string, data []byte) error {
	if path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return nil
	}

	switch format {
	case "hex", "":
		_, err := fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
		return err
	case "base64":
		_, err := fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(data))
		return err
	default:
		return fmt.Errorf("unsupported output format: %s (use hex or base64)", format)
	}
}

// loadPrivateKey loads an unencrypted PEM private key and records the access.
func loadPrivateKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		_ = audit.LogKeyAccessed(path, "", err)
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	key, err := pkicrypto.ParsePrivateKeyPEM(data)
	if aerr := audit.LogKeyAccessed(path, "", err); aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}
	return key, nil
}

// loadPublicKey loads a PUBLIC KEY or CERTIFICATE PEM file.
func loadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	return pkicrypto.ParsePublicKeyPEM(data)
}

// loadCertificates loads all CERTIFICATE blocks of a PEM file.
func loadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificates: %w", err)
	}

	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return certs, nil
}

// resolveSignAlgo parses name, or picks the configured default for the
// family of pub when name is empty.
func resolveSignAlgo(name string, pub crypto.PublicKey) (pkicrypto.SignAlgo, error) {
	if name != "" {
		return pkicrypto.ParseSignAlgo(name)
	}
	family, err := pkicrypto.KeyFamilyOf(pub)
	if err != nil {
		return pkicrypto.SignAlgo{}, err
	}
	return cfg.SignAlgo(family)
}
