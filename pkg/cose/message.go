package cose

import (
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"time"

	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// COSEError wraps a failure of a COSE operation.
type COSEError struct {
	Op  string
	Err error
}

func (e *COSEError) Error() string {
	return "cose: " + e.Op + ": " + e.Err.Error()
}

func (e *COSEError) Unwrap() error {
	return e.Err
}

// ErrNoVerificationKey is returned when neither the configuration nor the
// message provides a key to verify with.
var ErrNoVerificationKey = errors.New("no verification key")

// COSE header labels (RFC 9052, RFC 9360).
const (
	HeaderAlgorithm   int64 = 1  // alg
	HeaderContentType int64 = 3  // content type
	HeaderKeyID       int64 = 4  // kid
	HeaderX5Chain     int64 = 33 // x5chain
)

// Message is a parsed COSE_Sign1 message.
type Message struct {
	Algorithm   gocose.Algorithm
	KeyID       []byte
	ContentType string
	Certificate *x509.Certificate // first x5chain entry, if any
	Payload     []byte
	Signature   []byte
	RawMessage  []byte
}

// MessageConfig contains options for creating a COSE_Sign1 message.
type MessageConfig struct {
	// Signer produces the signature. *rsa.PrivateKey is signed through the
	// registry-backed RSA signer; HSM signers are used through SignDigest.
	Signer crypto.Signer

	// Algorithm overrides the algorithm derived from the key.
	Algorithm gocose.Algorithm

	// Certificate sets the kid header to its fingerprint.
	Certificate *x509.Certificate

	// IncludeCertChain adds the certificate as x5chain.
	IncludeCertChain bool

	// ContentType (e.g. "application/json").
	ContentType string
}

// VerifyConfig contains options for verifying a COSE_Sign1 message.
type VerifyConfig struct {
	// PublicKey or Certificate selects the verification key. When both are
	// empty the x5chain certificate of the message is used.
	PublicKey   crypto.PublicKey
	Certificate *x509.Certificate

	// Roots enables chain verification of the signing certificate.
	Roots         *x509.CertPool
	Intermediates *x509.CertPool
	CurrentTime   time.Time

	// Dispatcher resolves verification strategies; a shared one is used when nil.
	Dispatcher *pkicrypto.Dispatcher
}

// VerifyResult contains the result of message verification.
type VerifyResult struct {
	Algorithm   gocose.Algorithm
	SignAlgo    pkicrypto.SignAlgo
	Certificate *x509.Certificate
	Payload     []byte

	// Non-fatal issues, such as a failed chain verification.
	Warnings []string
}

// CertificateFingerprint returns the SHA-256 fingerprint of a certificate.
// It is used as the Key ID (kid) in COSE headers.
func CertificateFingerprint(cert *x509.Certificate) []byte {
	if cert == nil {
		return nil
	}
	h := sha256.Sum256(cert.Raw)
	return h[:]
}
