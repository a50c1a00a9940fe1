package crypto

import (
	"errors"
	"fmt"
)

// SignatureError represents a signature encoding or verification error with
// structured context. It supports errors.Is() and errors.As().
type SignatureError struct {
	Op     string // Operation: "pkcs1", "pss", "mgf1", "plain-to-der", "der-to-plain", "resolve", ...
	Detail string // Offending sizes or names; never key material
	Err    error  // Underlying error
}

// Error implements the error interface.
func (e *SignatureError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SignatureError) Unwrap() error { return e.Err }

func newSizeError(op string, err error, format string, args ...any) *SignatureError {
	return &SignatureError{Op: op, Detail: fmt.Sprintf(format, args...), Err: err}
}

// MaxKeyBits bounds the modulus and field sizes accepted by the encoders
// and the DSA-family converter.
const MaxKeyBits = 1 << 16

// checkKeyBits rejects a size above MaxKeyBits before any allocation.
func checkKeyBits(op, param string, bits int) error {
	if bits > MaxKeyBits {
		return newSizeError(op, ErrSizeOutOfRange, "%s %d exceeds %d", param, bits, MaxKeyBits)
	}
	return nil
}

// Sentinel errors.
// Use errors.Is() to check for these errors through the error chain.
var (
	// ErrLengthMismatch indicates a digest length that disagrees with its algorithm.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrDataTooLong indicates the modulus is too small for the PKCS#1 v1.5 structure.
	ErrDataTooLong = errors.New("data too long")

	// ErrKeyTooSmall indicates the modulus is too small for the PSS structure.
	ErrKeyTooSmall = errors.New("key too small for hash and salt lengths")

	// ErrInvalidParameterCombination indicates SHAKE-based PSS with a foreign MGF digest or salt length.
	ErrInvalidParameterCombination = errors.New("invalid parameter combination")

	// ErrOddLength indicates a plain DSA-family signature with an odd number of bytes.
	ErrOddLength = errors.New("plain signature length must be even")

	// ErrMalformedEncoding indicates a DSA-family signature that is not a DER SEQUENCE of two INTEGERs.
	ErrMalformedEncoding = errors.New("malformed signature encoding")

	// ErrSignatureTooLarge indicates a signature integer wider than the target field.
	ErrSignatureTooLarge = errors.New("signature is too large")

	// ErrMissingAuxiliaryKey indicates a Diffie-Hellman key without the verifier's own static key.
	ErrMissingAuxiliaryKey = errors.New("static key and certificate are required but absent")

	// ErrInvalidKey indicates unusable public key material.
	ErrInvalidKey = errors.New("invalid key")

	// ErrUnsupportedAlgorithm indicates an unknown key or signature algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrMissingPrefix indicates a digest without a registered DigestInfo prefix.
	// This is an internal configuration defect, not a caller error.
	ErrMissingPrefix = errors.New("no DigestInfo prefix registered")

	// ErrHashNotFound indicates an unknown digest algorithm name.
	ErrHashNotFound = errors.New("unknown hash algorithm")

	// ErrSizeOutOfRange indicates a modulus or key size above MaxKeyBits.
	ErrSizeOutOfRange = errors.New("key size out of range")

	// ErrVerification indicates that a signature or encoded block is inconsistent.
	ErrVerification = errors.New("signature verification failed")
)
