package cose

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

var defaultDispatcher = sync.OnceValue(func() *pkicrypto.Dispatcher {
	return pkicrypto.NewDispatcher(nil)
})

// VerifySign1 verifies a COSE_Sign1 message.
func VerifySign1(data []byte, config *VerifyConfig) (*VerifyResult, error) {
	if config == nil {
		config = &VerifyConfig{}
	}

	msg, err := ParseSign1(data)
	if err != nil {
		return nil, err
	}
	sign1, err := unmarshalSign1(data)
	if err != nil {
		return nil, err
	}

	pub, cert := resolvePublicKey(msg, config)
	if pub == nil {
		return nil, &COSEError{Op: "verify", Err: ErrNoVerificationKey}
	}

	result := &VerifyResult{
		Algorithm:   msg.Algorithm,
		Certificate: cert,
		Payload:     msg.Payload,
	}

	if config.Roots != nil && cert != nil {
		if err := verifyCertificateChain(cert, config); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("certificate verification failed: %v", err))
		}
	}

	verifier, err := NewVerifierWithAlgorithm(config.Dispatcher, pub, msg.Algorithm)
	if err != nil {
		return nil, err
	}
	result.SignAlgo = verifier.signAlgo

	if err := sign1.Verify(nil, verifier); err != nil {
		return nil, &COSEError{Op: "verify", Err: err}
	}
	return result, nil
}

// resolvePublicKey selects the verification key: explicit key, then
// configured certificate, then the x5chain certificate of the message.
func resolvePublicKey(msg *Message, config *VerifyConfig) (crypto.PublicKey, *x509.Certificate) {
	switch {
	case config.PublicKey != nil:
		return config.PublicKey, config.Certificate
	case config.Certificate != nil:
		return certPublicKey(config.Certificate), config.Certificate
	case msg.Certificate != nil:
		return certPublicKey(msg.Certificate), msg.Certificate
	default:
		return nil, nil
	}
}

// certPublicKey falls back to the SPKI parser for keys crypto/x509 leaves
// unparsed, such as Ed448.
func certPublicKey(cert *x509.Certificate) crypto.PublicKey {
	if cert.PublicKey != nil {
		return cert.PublicKey
	}
	pub, err := pkicrypto.ParsePublicKey(cert.RawSubjectPublicKeyInfo)
	if err != nil {
		return nil
	}
	return pub
}

func verifyCertificateChain(cert *x509.Certificate, config *VerifyConfig) error {
	now := config.CurrentTime
	if now.IsZero() {
		now = time.Now()
	}
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:         config.Roots,
		Intermediates: config.Intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}
