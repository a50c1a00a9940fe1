package crypto

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA verification is required for legacy certificates
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/cloudflare/circl/dh/x448"
	"github.com/cloudflare/circl/sign/ed448"
)

// RFC 8410 algorithm identifiers not handled by crypto/x509.
var (
	oidX448  = asn1.ObjectIdentifier{1, 3, 101, 111}
	oidEd448 = asn1.ObjectIdentifier{1, 3, 101, 113}
)

// X448PublicKey is a Montgomery-curve X448 public key.
type X448PublicKey struct {
	key x448.Key
}

// NewX448PublicKey wraps a 56-byte X448 public value.
func NewX448PublicKey(b []byte) (*X448PublicKey, error) {
	if len(b) != x448.Size {
		return nil, newSizeError("x448", ErrInvalidKey, "public key must be %d bytes, got %d", x448.Size, len(b))
	}
	pub := &X448PublicKey{}
	copy(pub.key[:], b)
	return pub, nil
}

// Bytes returns a copy of the encoded public value.
func (k *X448PublicKey) Bytes() []byte {
	out := make([]byte, x448.Size)
	copy(out, k.key[:])
	return out
}

// Equal reports whether k and x hold the same public value.
func (k *X448PublicKey) Equal(x crypto.PublicKey) bool {
	other, ok := x.(*X448PublicKey)
	return ok && other.key == k.key
}

// X448PrivateKey is a static X448 private key.
type X448PrivateKey struct {
	secret x448.Key
	public X448PublicKey
}

// GenerateX448Key generates an X448 key pair using random, or crypto/rand when nil.
func GenerateX448Key(random io.Reader) (*X448PrivateKey, error) {
	if random == nil {
		random = rand.Reader
	}
	var seed [x448.Size]byte
	if _, err := io.ReadFull(random, seed[:]); err != nil {
		return nil, err
	}
	return NewX448PrivateKey(seed[:])
}

// NewX448PrivateKey wraps a 56-byte X448 secret scalar.
func NewX448PrivateKey(b []byte) (*X448PrivateKey, error) {
	if len(b) != x448.Size {
		return nil, newSizeError("x448", ErrInvalidKey, "private key must be %d bytes, got %d", x448.Size, len(b))
	}
	priv := &X448PrivateKey{}
	copy(priv.secret[:], b)
	x448.KeyGen(&priv.public.key, &priv.secret)
	return priv, nil
}

// PublicKey returns the matching public key.
func (k *X448PrivateKey) PublicKey() *X448PublicKey {
	pub := k.public
	return &pub
}

// Public implements the crypto.Decrypter-style accessor.
func (k *X448PrivateKey) Public() crypto.PublicKey {
	return k.PublicKey()
}

// ECDH computes the shared secret with peer.
func (k *X448PrivateKey) ECDH(peer *X448PublicKey) ([]byte, error) {
	var shared x448.Key
	if !x448.Shared(&shared, &k.secret, &peer.key) {
		return nil, &SignatureError{Op: "x448", Detail: "low-order public key", Err: ErrInvalidKey}
	}
	return shared[:], nil
}

// KeyFamilyOf returns the key family of a parsed public key.
func KeyFamilyOf(pub crypto.PublicKey) (KeyFamily, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return FamilyRSA, nil
	case *dsa.PublicKey:
		return FamilyDSA, nil
	case *ecdsa.PublicKey:
		return FamilyEC, nil
	case ed25519.PublicKey:
		return FamilyEd25519, nil
	case ed448.PublicKey:
		return FamilyEd448, nil
	case *ecdh.PublicKey:
		if k.Curve() == ecdh.X25519() {
			return FamilyX25519, nil
		}
		return FamilyUnknown, &SignatureError{Op: "resolve", Detail: "ECDH key on a Weierstrass curve", Err: ErrUnsupportedAlgorithm}
	case *X448PublicKey:
		return FamilyX448, nil
	default:
		return FamilyUnknown, &SignatureError{Op: "resolve", Detail: fmt.Sprintf("%T", pub), Err: ErrUnsupportedAlgorithm}
	}
}

// subjectPublicKeyInfo mirrors the X.509 SubjectPublicKeyInfo structure.
type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// ParsePublicKey parses a DER SubjectPublicKeyInfo. In addition to the
// types supported by crypto/x509 it accepts Ed448 and X448 keys.
func ParsePublicKey(der []byte) (crypto.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err == nil {
		return pub, nil
	}

	var spki subjectPublicKeyInfo
	rest, spkiErr := asn1.Unmarshal(der, &spki)
	if spkiErr != nil || len(rest) != 0 {
		return nil, &SignatureError{Op: "parse-key", Detail: err.Error(), Err: ErrInvalidKey}
	}

	raw := spki.PublicKey.RightAlign()
	switch {
	case spki.Algorithm.Algorithm.Equal(oidEd448):
		if len(raw) != ed448.PublicKeySize {
			return nil, newSizeError("parse-key", ErrInvalidKey, "Ed448 key must be %d bytes, got %d", ed448.PublicKeySize, len(raw))
		}
		return ed448.PublicKey(raw), nil
	case spki.Algorithm.Algorithm.Equal(oidX448):
		return NewX448PublicKey(raw)
	default:
		return nil, &SignatureError{Op: "parse-key", Detail: err.Error(), Err: ErrInvalidKey}
	}
}

// MarshalPublicKey encodes pub as a DER SubjectPublicKeyInfo.
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	var oid asn1.ObjectIdentifier
	var raw []byte
	switch k := pub.(type) {
	case ed448.PublicKey:
		oid, raw = oidEd448, []byte(k)
	case *X448PublicKey:
		oid, raw = oidX448, k.Bytes()
	default:
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, &SignatureError{Op: "marshal-key", Detail: err.Error(), Err: ErrInvalidKey}
		}
		return der, nil
	}
	return asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: oid},
		PublicKey: asn1.BitString{Bytes: raw, BitLength: 8 * len(raw)},
	})
}

// ParsePublicKeyPEM parses the first PUBLIC KEY block, or the public key of
// the first CERTIFICATE block, found in data.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, &SignatureError{Op: "parse-key", Detail: "no PUBLIC KEY or CERTIFICATE block", Err: ErrInvalidKey}
		}
		switch block.Type {
		case "PUBLIC KEY":
			return ParsePublicKey(block.Bytes)
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, &SignatureError{Op: "parse-key", Detail: err.Error(), Err: ErrInvalidKey}
			}
			if cert.PublicKeyAlgorithm == x509.UnknownPublicKeyAlgorithm {
				return ParsePublicKey(cert.RawSubjectPublicKeyInfo)
			}
			return cert.PublicKey, nil
		}
	}
}

// EncodePublicKeyPEM encodes pub as a PUBLIC KEY PEM block.
func EncodePublicKeyPEM(pub crypto.PublicKey) ([]byte, error) {
	der, err := MarshalPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// pkcs8 mirrors the PKCS#8 PrivateKeyInfo structure.
type pkcs8 struct {
	Version    int
	Algo       pkix.AlgorithmIdentifier
	PrivateKey []byte
}

// ParsePrivateKeyPEM parses an unencrypted private key. PKCS#1 RSA, SEC 1 EC
// and PKCS#8 blocks are accepted, including PKCS#8 Ed448 and X448 keys.
func ParsePrivateKeyPEM(data []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &SignatureError{Op: "parse-key", Detail: "no PEM block", Err: ErrInvalidKey}
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, &SignatureError{Op: "parse-key", Detail: err.Error(), Err: ErrInvalidKey}
		}
		return key, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, &SignatureError{Op: "parse-key", Detail: err.Error(), Err: ErrInvalidKey}
		}
		return key, nil
	case "PRIVATE KEY":
	default:
		return nil, &SignatureError{Op: "parse-key", Detail: "unsupported PEM type " + block.Type, Err: ErrInvalidKey}
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}

	var info pkcs8
	if _, perr := asn1.Unmarshal(block.Bytes, &info); perr != nil {
		return nil, &SignatureError{Op: "parse-key", Detail: err.Error(), Err: ErrInvalidKey}
	}
	var raw []byte
	if _, perr := asn1.Unmarshal(info.PrivateKey, &raw); perr != nil {
		return nil, &SignatureError{Op: "parse-key", Detail: perr.Error(), Err: ErrInvalidKey}
	}

	switch {
	case info.Algo.Algorithm.Equal(oidEd448):
		if len(raw) != ed448.SeedSize {
			return nil, newSizeError("parse-key", ErrInvalidKey, "Ed448 seed must be %d bytes, got %d", ed448.SeedSize, len(raw))
		}
		return ed448.NewKeyFromSeed(raw), nil
	case info.Algo.Algorithm.Equal(oidX448):
		return NewX448PrivateKey(raw)
	default:
		return nil, &SignatureError{Op: "parse-key", Detail: err.Error(), Err: ErrInvalidKey}
	}
}
