package dto

// HashInfo describes a registered digest algorithm.
type HashInfo struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	OID  string `json:"oid"`

	// XOF is set for SHAKE128/SHAKE256.
	XOF bool `json:"xof,omitempty"`

	// PKCS1Prefix reports whether a DigestInfo prefix is registered.
	PKCS1Prefix bool `json:"pkcs1_prefix"`
}

// HashListResponse lists the registered digests.
type HashListResponse struct {
	Hashes []HashInfo `json:"hashes"`
}

// EncodePKCS1Request is an EMSA-PKCS1-v1_5 encoding request. Exactly one of
// Hash (with Digest) or DigestInfo must be given.
type EncodePKCS1Request struct {
	// Hash names the digest algorithm of Digest.
	Hash string `json:"hash,omitempty"`

	// Digest is the hash value.
	Digest *BinaryData `json:"digest,omitempty"`

	// DigestInfo is a caller-built DER DigestInfo.
	DigestInfo *BinaryData `json:"digest_info,omitempty"`

	// ModulusBits is the RSA modulus length in bits.
	ModulusBits int `json:"modulus_bits"`
}

// EncodePSSRequest is an EMSA-PSS encoding request.
type EncodePSSRequest struct {
	Hash   string     `json:"hash"`
	Digest BinaryData `json:"digest"`

	// MGFHash defaults to Hash.
	MGFHash string `json:"mgf_hash,omitempty"`

	// SaltLength defaults to the digest size.
	SaltLength *int `json:"salt_length,omitempty"`

	ModulusBits int `json:"modulus_bits"`
}

// EncodeResponse carries an encoded message.
type EncodeResponse struct {
	EncodedMessage BinaryData `json:"encoded_message"`
	Hash           string     `json:"hash,omitempty"`
	ModulusBits    int        `json:"modulus_bits"`
	Length         int        `json:"length"`
}

// ConvertRequest is a DSA-family signature format conversion request.
type ConvertRequest struct {
	Signature BinaryData `json:"signature"`

	// KeyBits is the group order size in bits; required for DER to plain.
	KeyBits int `json:"key_bits,omitempty"`
}

// ConvertResponse carries a converted signature.
type ConvertResponse struct {
	Signature BinaryData `json:"signature"`
	Format    string     `json:"format"`
	Length    int        `json:"length"`
}

// VerifyRequest is a signature verification request.
type VerifyRequest struct {
	// PublicKey is a PEM SubjectPublicKeyInfo.
	PublicKey BinaryData `json:"public_key"`

	// Algorithm names the signature algorithm; it defaults by key family.
	Algorithm string `json:"algorithm,omitempty"`

	// KeyAlgorithm optionally names the key family explicitly.
	KeyAlgorithm string `json:"key_algorithm,omitempty"`

	Message   BinaryData `json:"message"`
	Signature BinaryData `json:"signature"`
}

// VerifyResponse represents the result of a verification.
type VerifyResponse struct {
	Valid     bool     `json:"valid"`
	Algorithm string   `json:"algorithm"`
	KeyFamily string   `json:"key_family"`
	Errors    []string `json:"errors,omitempty"`
}

// COSEVerifyRequest represents a COSE_Sign1 verification request.
type COSEVerifyRequest struct {
	// Message is the tagged COSE_Sign1 structure.
	Message BinaryData `json:"message"`

	// PublicKey is an optional PEM SubjectPublicKeyInfo. Without it the
	// key comes from the x5chain header.
	PublicKey *BinaryData `json:"public_key,omitempty"`

	// TrustAnchors are PEM certificates to verify the x5chain against.
	TrustAnchors []BinaryData `json:"trust_anchors,omitempty"`
}

// COSEVerifyResponse represents the result of COSE verification.
type COSEVerifyResponse struct {
	Valid     bool        `json:"valid"`
	Algorithm string      `json:"algorithm,omitempty"`
	Payload   *BinaryData `json:"payload,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
}
