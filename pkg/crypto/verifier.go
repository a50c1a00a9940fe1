package crypto

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA verification is required for legacy certificates
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"math/big"
)

// =============================================================================
// RSA
// =============================================================================

type rsaBuilder struct {
	reg *Registry
}

func (b rsaBuilder) build(pub crypto.PublicKey) (Verifier, error) {
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, &SignatureError{Op: "resolve", Detail: fmt.Sprintf("expected RSA key, got %T", pub), Err: ErrInvalidKey}
	}
	if key.N == nil || key.N.Sign() <= 0 || key.N.Bit(0) == 0 {
		return nil, &SignatureError{Op: "resolve", Detail: "RSA modulus must be positive and odd", Err: ErrInvalidKey}
	}
	if key.E < 3 || key.E&1 == 0 {
		return nil, &SignatureError{Op: "resolve", Detail: fmt.Sprintf("RSA public exponent %d", key.E), Err: ErrInvalidKey}
	}
	return &rsaVerifier{reg: b.reg, pub: key}, nil
}

type rsaVerifier struct {
	reg *Registry
	pub *rsa.PublicKey
}

func (v *rsaVerifier) Family() KeyFamily           { return FamilyRSA }
func (v *rsaVerifier) PublicKey() crypto.PublicKey { return v.pub }

func (v *rsaVerifier) Verify(alg SignAlgo, message, signature []byte) error {
	if err := checkFamily(FamilyRSA, alg); err != nil {
		return err
	}
	digest, err := hashMessage(alg, message)
	if err != nil {
		return err
	}
	return verifyRSADigest(v.reg, v.pub, alg, digest, signature)
}

func (v *rsaVerifier) VerifyDigest(alg SignAlgo, digest, signature []byte) error {
	if err := checkFamily(FamilyRSA, alg); err != nil {
		return err
	}
	return verifyRSADigest(v.reg, v.pub, alg, digest, signature)
}

// =============================================================================
// DSA
// =============================================================================

type dsaBuilder struct{}

func (dsaBuilder) build(pub crypto.PublicKey) (Verifier, error) {
	key, ok := pub.(*dsa.PublicKey)
	if !ok {
		return nil, &SignatureError{Op: "resolve", Detail: fmt.Sprintf("expected DSA key, got %T", pub), Err: ErrInvalidKey}
	}
	if key.P == nil || key.Q == nil || key.G == nil || key.Y == nil ||
		key.Q.Sign() <= 0 || key.Y.Cmp(big.NewInt(1)) <= 0 || key.Y.Cmp(key.P) >= 0 {
		return nil, &SignatureError{Op: "resolve", Detail: "DSA domain parameters or public value out of range", Err: ErrInvalidKey}
	}
	return &dsaVerifier{pub: key}, nil
}

type dsaVerifier struct {
	pub *dsa.PublicKey
}

func (v *dsaVerifier) Family() KeyFamily           { return FamilyDSA }
func (v *dsaVerifier) PublicKey() crypto.PublicKey { return v.pub }

func (v *dsaVerifier) Verify(alg SignAlgo, message, signature []byte) error {
	if err := checkFamily(FamilyDSA, alg); err != nil {
		return err
	}
	digest, err := hashMessage(alg, message)
	if err != nil {
		return err
	}
	return v.VerifyDigest(alg, digest, signature)
}

func (v *dsaVerifier) VerifyDigest(alg SignAlgo, digest, signature []byte) error {
	if err := checkFamily(FamilyDSA, alg); err != nil {
		return err
	}
	r, s, err := ParseDSASignature(signature)
	if err != nil {
		return err
	}
	// crypto/dsa does not truncate the digest to the bit length of q.
	if n := (v.pub.Q.BitLen() + 7) / 8; len(digest) > n {
		digest = digest[:n]
	}
	if !dsa.Verify(v.pub, digest, r, s) {
		return &SignatureError{Op: "dsa-verify", Detail: alg.Name(), Err: ErrVerification}
	}
	return nil
}

// =============================================================================
// ECDSA
// =============================================================================

type ecBuilder struct{}

func (ecBuilder) build(pub crypto.PublicKey) (Verifier, error) {
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, &SignatureError{Op: "resolve", Detail: fmt.Sprintf("expected EC key, got %T", pub), Err: ErrInvalidKey}
	}
	if key.Curve == nil || key.X == nil || key.Y == nil {
		return nil, &SignatureError{Op: "resolve", Detail: "incomplete EC key", Err: ErrInvalidKey}
	}
	// ECDH performs the on-curve check for the NIST curves.
	if _, err := key.ECDH(); err != nil {
		return nil, &SignatureError{Op: "resolve", Detail: err.Error(), Err: ErrInvalidKey}
	}
	return &ecVerifier{pub: key}, nil
}

type ecVerifier struct {
	pub *ecdsa.PublicKey
}

func (v *ecVerifier) Family() KeyFamily           { return FamilyEC }
func (v *ecVerifier) PublicKey() crypto.PublicKey { return v.pub }

func (v *ecVerifier) Verify(alg SignAlgo, message, signature []byte) error {
	if err := checkFamily(FamilyEC, alg); err != nil {
		return err
	}
	digest, err := hashMessage(alg, message)
	if err != nil {
		return err
	}
	return v.VerifyDigest(alg, digest, signature)
}

func (v *ecVerifier) VerifyDigest(alg SignAlgo, digest, signature []byte) error {
	if err := checkFamily(FamilyEC, alg); err != nil {
		return err
	}

	var r, s *big.Int
	if alg.Family() == SignPlainECDSA {
		fieldLen := (v.pub.Curve.Params().BitSize + 7) / 8
		if len(signature) != 2*fieldLen {
			return newSizeError("ecdsa-verify", ErrVerification,
				"plain signature %d bytes, expected %d", len(signature), 2*fieldLen)
		}
		r = new(big.Int).SetBytes(signature[:fieldLen])
		s = new(big.Int).SetBytes(signature[fieldLen:])
	} else {
		var err error
		if r, s, err = ParseDSASignature(signature); err != nil {
			return err
		}
	}

	if !ecdsa.Verify(v.pub, digest, r, s) {
		return &SignatureError{Op: "ecdsa-verify", Detail: alg.Name(), Err: ErrVerification}
	}
	return nil
}
