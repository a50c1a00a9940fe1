package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"

	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// digestSigner is implemented by signers that take a SignAlgo, such as the
// RSA signer and the PKCS#11 signer.
type digestSigner interface {
	SignDigest(random io.Reader, alg pkicrypto.SignAlgo, digest []byte) ([]byte, error)
}

// Signer wraps a crypto.Signer to implement gocose.Signer.
type Signer struct {
	signer    crypto.Signer
	algorithm gocose.Algorithm
	signAlgo  pkicrypto.SignAlgo
}

// NewSigner creates a COSE signer using the algorithm derived from the key.
func NewSigner(s crypto.Signer) (*Signer, error) {
	alg, err := COSEAlgorithmFromKey(s.Public())
	if err != nil {
		return nil, err
	}
	return NewSignerWithAlgorithm(s, alg)
}

// NewSignerWithAlgorithm creates a COSE signer with an explicit algorithm.
func NewSignerWithAlgorithm(s crypto.Signer, alg gocose.Algorithm) (*Signer, error) {
	signAlgo, err := SignAlgoFor(alg, s.Public())
	if err != nil {
		return nil, err
	}
	if key, ok := s.(*rsa.PrivateKey); ok {
		rs, err := pkicrypto.NewRSASigner(nil, key)
		if err != nil {
			return nil, &COSEError{Op: "signer", Err: err}
		}
		s = rs
	}
	return &Signer{signer: s, algorithm: alg, signAlgo: signAlgo}, nil
}

// Algorithm returns the COSE algorithm identifier.
func (s *Signer) Algorithm() gocose.Algorithm {
	return s.algorithm
}

// Sign signs the Sig_structure content.
func (s *Signer) Sign(random io.Reader, content []byte) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}

	alg := s.signAlgo
	if alg.Family() == pkicrypto.SignEdDSA {
		return s.signer.Sign(random, content, crypto.Hash(0))
	}

	digest := alg.Hash().Hash(content)
	if ds, ok := s.signer.(digestSigner); ok {
		return ds.SignDigest(random, alg, digest)
	}

	pub, ok := s.signer.Public().(*ecdsa.PublicKey)
	if !ok || alg.Family() != pkicrypto.SignPlainECDSA {
		return nil, &COSEError{Op: "sign", Err: fmt.Errorf("%s with %T: %w", alg, s.signer, pkicrypto.ErrUnsupportedAlgorithm)}
	}
	der, err := s.signer.Sign(random, digest, alg.Hash().CryptoHash())
	if err != nil {
		return nil, &COSEError{Op: "sign", Err: err}
	}
	// COSE carries r || s, each as wide as the curve order.
	return pkicrypto.DSADERToPlain(der, pub.Curve.Params().BitSize)
}

// Verifier implements gocose.Verifier with a resolved verification strategy.
type Verifier struct {
	verifier  pkicrypto.Verifier
	algorithm gocose.Algorithm
	signAlgo  pkicrypto.SignAlgo
}

// NewVerifier creates a COSE verifier using the algorithm derived from pub.
func NewVerifier(d *pkicrypto.Dispatcher, pub crypto.PublicKey) (*Verifier, error) {
	alg, err := COSEAlgorithmFromKey(pub)
	if err != nil {
		return nil, err
	}
	return NewVerifierWithAlgorithm(d, pub, alg)
}

// NewVerifierWithAlgorithm creates a COSE verifier with an explicit algorithm.
func NewVerifierWithAlgorithm(d *pkicrypto.Dispatcher, pub crypto.PublicKey, alg gocose.Algorithm) (*Verifier, error) {
	if d == nil {
		d = defaultDispatcher()
	}
	signAlgo, err := SignAlgoFor(alg, pub)
	if err != nil {
		return nil, err
	}
	v, err := d.ResolveKey(pub, nil)
	if err != nil {
		return nil, &COSEError{Op: "verifier", Err: err}
	}
	return &Verifier{verifier: v, algorithm: alg, signAlgo: signAlgo}, nil
}

// Algorithm returns the COSE algorithm identifier.
func (v *Verifier) Algorithm() gocose.Algorithm {
	return v.algorithm
}

// Verify checks signature over the Sig_structure content.
func (v *Verifier) Verify(content, signature []byte) error {
	return v.verifier.Verify(v.signAlgo, content, signature)
}

// PublicKey returns the public key used for verification.
func (v *Verifier) PublicKey() crypto.PublicKey {
	return v.verifier.PublicKey()
}
