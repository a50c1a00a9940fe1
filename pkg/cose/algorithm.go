// Package cose signs and verifies COSE_Sign1 messages (RFC 9052) on top of
// the signature core. ECDSA signatures travel in the plain r || s form that
// COSE mandates; RSA and EdDSA signatures are carried unchanged.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// COSE Algorithm IDs (IANA COSE Algorithms Registry).
const (
	AlgES256 gocose.Algorithm = -7  // ECDSA w/ SHA-256
	AlgES384 gocose.Algorithm = -35 // ECDSA w/ SHA-384
	AlgES512 gocose.Algorithm = -36 // ECDSA w/ SHA-512
	AlgEdDSA gocose.Algorithm = -8  // EdDSA (Ed25519/Ed448)
	AlgPS256 gocose.Algorithm = -37 // RSASSA-PSS w/ SHA-256
	AlgPS384 gocose.Algorithm = -38 // RSASSA-PSS w/ SHA-384
	AlgPS512 gocose.Algorithm = -39 // RSASSA-PSS w/ SHA-512

	// RFC 8812
	AlgRS256 gocose.Algorithm = -257 // RSASSA-PKCS1-v1_5 w/ SHA-256
	AlgRS384 gocose.Algorithm = -258 // RSASSA-PKCS1-v1_5 w/ SHA-384
	AlgRS512 gocose.Algorithm = -259 // RSASSA-PKCS1-v1_5 w/ SHA-512
)

var coseToSignAlgo = map[gocose.Algorithm]pkicrypto.SignAlgo{
	AlgES256: pkicrypto.SHA256WithPlainECDSA,
	AlgES384: pkicrypto.SHA384WithPlainECDSA,
	AlgES512: pkicrypto.SHA512WithPlainECDSA,
	AlgPS256: pkicrypto.SHA256WithRSAPSS,
	AlgPS384: pkicrypto.SHA384WithRSAPSS,
	AlgPS512: pkicrypto.SHA512WithRSAPSS,
	AlgRS256: pkicrypto.SHA256WithRSA,
	AlgRS384: pkicrypto.SHA384WithRSA,
	AlgRS512: pkicrypto.SHA512WithRSA,
}

// SignAlgoFor returns the signature algorithm a COSE algorithm denotes for
// pub. EdDSA resolves to Ed25519 or Ed448 depending on the key.
func SignAlgoFor(alg gocose.Algorithm, pub crypto.PublicKey) (pkicrypto.SignAlgo, error) {
	if alg == AlgEdDSA {
		switch pub.(type) {
		case ed25519.PublicKey:
			return pkicrypto.Ed25519, nil
		case ed448.PublicKey:
			return pkicrypto.Ed448, nil
		default:
			return pkicrypto.SignAlgo{}, &COSEError{Op: "algorithm", Err: fmt.Errorf("EdDSA with %T: %w", pub, pkicrypto.ErrUnsupportedAlgorithm)}
		}
	}
	sa, ok := coseToSignAlgo[alg]
	if !ok {
		return pkicrypto.SignAlgo{}, &COSEError{Op: "algorithm", Err: fmt.Errorf("COSE algorithm %d: %w", alg, pkicrypto.ErrUnsupportedAlgorithm)}
	}
	return sa, nil
}

// COSEAlgorithmFromKey picks the COSE algorithm for a public key. RSA keys
// default to PS256.
func COSEAlgorithmFromKey(pub crypto.PublicKey) (gocose.Algorithm, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return AlgES256, nil
		case 384:
			return AlgES384, nil
		case 521:
			return AlgES512, nil
		default:
			return 0, &COSEError{Op: "algorithm", Err: fmt.Errorf("curve %s: %w", k.Curve.Params().Name, pkicrypto.ErrUnsupportedAlgorithm)}
		}
	case ed25519.PublicKey, ed448.PublicKey:
		return AlgEdDSA, nil
	case *rsa.PublicKey:
		return AlgPS256, nil
	default:
		return 0, &COSEError{Op: "algorithm", Err: fmt.Errorf("%T: %w", pub, pkicrypto.ErrUnsupportedAlgorithm)}
	}
}

// AlgorithmName returns a human-readable name for a COSE algorithm.
func AlgorithmName(alg gocose.Algorithm) string {
	switch alg {
	case AlgEdDSA:
		return "EdDSA"
	case AlgES256:
		return "ES256"
	case AlgES384:
		return "ES384"
	case AlgES512:
		return "ES512"
	case AlgPS256:
		return "PS256"
	case AlgPS384:
		return "PS384"
	case AlgPS512:
		return "PS512"
	case AlgRS256:
		return "RS256"
	case AlgRS384:
		return "RS384"
	case AlgRS512:
		return "RS512"
	default:
		return fmt.Sprintf("Unknown(%d)", alg)
	}
}

// ParseAlgorithm parses a COSE algorithm name such as "ES256" or "PS384".
func ParseAlgorithm(name string) (gocose.Algorithm, error) {
	for _, alg := range []gocose.Algorithm{AlgES256, AlgES384, AlgES512, AlgEdDSA, AlgPS256, AlgPS384, AlgPS512, AlgRS256, AlgRS384, AlgRS512} {
		if AlgorithmName(alg) == name {
			return alg, nil
		}
	}
	return 0, &COSEError{Op: "algorithm", Err: fmt.Errorf("%q: %w", name, pkicrypto.ErrUnsupportedAlgorithm)}
}
