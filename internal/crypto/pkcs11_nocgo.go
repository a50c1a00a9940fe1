//go:build !cgo

// Package crypto provides HSM-backed signers for the signature core.
// This file provides stub implementations when CGO is not available.
// HSM support via PKCS#11 requires CGO.
package crypto

import (
	"crypto"
	"fmt"
	"io"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// PKCS11Signer signs with a key held in a PKCS#11 token.
// This stub is used when CGO is not available.
type PKCS11Signer struct{}

// errNoCGO is returned when PKCS#11 operations are attempted without CGO.
var errNoCGO = fmt.Errorf("HSM support requires CGO (build with CGO_ENABLED=1)")

// NewPKCS11Signer returns an error when CGO is not available.
func NewPKCS11Signer(_ PKCS11Config, _ *pkicrypto.Registry) (*PKCS11Signer, error) {
	return nil, errNoCGO
}

// Public returns the public key.
func (s *PKCS11Signer) Public() crypto.PublicKey {
	return nil
}

// Sign signs the digest using the HSM.
func (s *PKCS11Signer) Sign(_ io.Reader, _ []byte, _ crypto.SignerOpts) ([]byte, error) {
	return nil, errNoCGO
}

// SignDigest signs a precomputed digest using the HSM.
func (s *PKCS11Signer) SignDigest(_ io.Reader, _ pkicrypto.SignAlgo, _ []byte) ([]byte, error) {
	return nil, errNoCGO
}

// Close closes the PKCS#11 signer.
func (s *PKCS11Signer) Close() error {
	return nil
}

// ListHSMSlots returns an error when CGO is not available.
func ListHSMSlots(_ string) (*HSMInfo, error) {
	return nil, errNoCGO
}

// CloseAllPools is a no-op when CGO is not available.
func CloseAllPools() {}
