package crypto

import (
	"crypto"
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
)

// edDSAVerifier verifies pure Ed25519 and Ed448 signatures. EdDSA hashes the
// message internally, so it does not implement DigestVerifier.
type edDSAVerifier struct {
	family KeyFamily
	pub    crypto.PublicKey
}

func newEdDSAVerifier(family KeyFamily, pub crypto.PublicKey) (Verifier, error) {
	switch key := pub.(type) {
	case ed25519.PublicKey:
		if family != FamilyEd25519 || len(key) != ed25519.PublicKeySize {
			return nil, &SignatureError{Op: "resolve", Detail: fmt.Sprintf("%s key of %d bytes", family, len(key)), Err: ErrInvalidKey}
		}
	case ed448.PublicKey:
		if family != FamilyEd448 || len(key) != ed448.PublicKeySize {
			return nil, &SignatureError{Op: "resolve", Detail: fmt.Sprintf("%s key of %d bytes", family, len(key)), Err: ErrInvalidKey}
		}
	default:
		return nil, &SignatureError{Op: "resolve", Detail: fmt.Sprintf("expected %s key, got %T", family, pub), Err: ErrInvalidKey}
	}
	return &edDSAVerifier{family: family, pub: pub}, nil
}

func (v *edDSAVerifier) Family() KeyFamily           { return v.family }
func (v *edDSAVerifier) PublicKey() crypto.PublicKey { return v.pub }

func (v *edDSAVerifier) Verify(alg SignAlgo, message, signature []byte) error {
	var ok bool
	switch key := v.pub.(type) {
	case ed25519.PublicKey:
		if alg.Name() != Ed25519.Name() {
			return &SignatureError{Op: "verify", Detail: alg.Name() + " with ED25519 key", Err: ErrUnsupportedAlgorithm}
		}
		ok = len(signature) == ed25519.SignatureSize && ed25519.Verify(key, message, signature)
	case ed448.PublicKey:
		if alg.Name() != Ed448.Name() {
			return &SignatureError{Op: "verify", Detail: alg.Name() + " with ED448 key", Err: ErrUnsupportedAlgorithm}
		}
		ok = len(signature) == ed448.SignatureSize && ed448.Verify(key, message, signature, "")
	}
	if !ok {
		return &SignatureError{Op: "eddsa-verify", Detail: alg.Name(), Err: ErrVerification}
	}
	return nil
}
