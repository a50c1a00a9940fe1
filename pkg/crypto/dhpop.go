package crypto

import (
	"crypto"
	"crypto/ecdh"
	"crypto/hmac"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// A DHPOP signature proves possession of a static X25519 or X448 key. The
// signer and the verifier agree on a shared secret, derive a MAC key with
// HKDF (info = the verifier certificate's raw subject) and MAC the message.

// dhSharedSecret runs the key agreement for priv and peer.
func dhSharedSecret(family KeyFamily, priv crypto.PrivateKey, peer crypto.PublicKey) ([]byte, error) {
	switch family {
	case FamilyX25519:
		k, ok := priv.(*ecdh.PrivateKey)
		if !ok || k.Curve() != ecdh.X25519() {
			return nil, &SignatureError{Op: "dhpop", Detail: fmt.Sprintf("expected X25519 private key, got %T", priv), Err: ErrInvalidKey}
		}
		p, ok := peer.(*ecdh.PublicKey)
		if !ok || p.Curve() != ecdh.X25519() {
			return nil, &SignatureError{Op: "dhpop", Detail: fmt.Sprintf("expected X25519 public key, got %T", peer), Err: ErrInvalidKey}
		}
		shared, err := k.ECDH(p)
		if err != nil {
			return nil, &SignatureError{Op: "dhpop", Detail: err.Error(), Err: ErrInvalidKey}
		}
		return shared, nil
	case FamilyX448:
		k, ok := priv.(*X448PrivateKey)
		if !ok {
			return nil, &SignatureError{Op: "dhpop", Detail: fmt.Sprintf("expected X448 private key, got %T", priv), Err: ErrInvalidKey}
		}
		p, ok := peer.(*X448PublicKey)
		if !ok {
			return nil, &SignatureError{Op: "dhpop", Detail: fmt.Sprintf("expected X448 public key, got %T", peer), Err: ErrInvalidKey}
		}
		return k.ECDH(p)
	default:
		return nil, &SignatureError{Op: "dhpop", Detail: family.String(), Err: ErrUnsupportedAlgorithm}
	}
}

// ComputeDHPOP returns the DHPOP MAC over message. priv is the caller's
// static key, peer the other party's public key and info the raw subject of
// the verifier's certificate.
func ComputeDHPOP(alg SignAlgo, priv crypto.PrivateKey, peer crypto.PublicKey, info, message []byte) ([]byte, error) {
	if alg.Family() != SignDHPOP {
		return nil, &SignatureError{Op: "dhpop", Detail: alg.Name(), Err: ErrUnsupportedAlgorithm}
	}
	family := dhpopKeyFamily(alg)

	shared, err := dhSharedSecret(family, priv, peer)
	if err != nil {
		return nil, err
	}

	h := alg.Hash()
	macKey := make([]byte, h.Size())
	if _, err := io.ReadFull(hkdf.New(h.New, shared, nil, info), macKey); err != nil {
		return nil, err
	}

	mac := hmac.New(h.New, macKey)
	mac.Write(message)
	return mac.Sum(nil), nil
}

func dhpopKeyFamily(alg SignAlgo) KeyFamily {
	if alg.Name() == DHPOPX448SHA512.Name() {
		return FamilyX448
	}
	return FamilyX25519
}

type dhpopVerifier struct {
	family KeyFamily
	pub    crypto.PublicKey
	aux    *StaticKeyCertPair
}

func newDHPOPVerifier(family KeyFamily, pub crypto.PublicKey, aux *StaticKeyCertPair) (Verifier, error) {
	// A trial agreement validates both keys up front.
	if _, err := dhSharedSecret(family, aux.PrivateKey, pub); err != nil {
		return nil, err
	}
	return &dhpopVerifier{family: family, pub: pub, aux: aux}, nil
}

func (v *dhpopVerifier) Family() KeyFamily           { return v.family }
func (v *dhpopVerifier) PublicKey() crypto.PublicKey { return v.pub }

func (v *dhpopVerifier) Verify(alg SignAlgo, message, signature []byte) error {
	if alg.Family() != SignDHPOP || dhpopKeyFamily(alg) != v.family {
		return &SignatureError{Op: "verify", Detail: alg.Name() + " with " + v.family.String() + " key", Err: ErrUnsupportedAlgorithm}
	}
	expected, err := ComputeDHPOP(alg, v.aux.PrivateKey, v.pub, v.aux.Certificate.RawSubject, message)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, signature) {
		return &SignatureError{Op: "dhpop-verify", Detail: alg.Name(), Err: ErrVerification}
	}
	return nil
}
