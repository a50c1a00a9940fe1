package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// RSASigner produces RSA signatures by applying the private-key primitive to
// blocks built by EncodePKCS1v15 and EncodePSS. It supports every digest of
// the registry, including SHA-3 and SHAKE, which crypto/rsa does not.
type RSASigner struct {
	reg *Registry
	key *rsa.PrivateKey
}

// Ensure RSASigner implements crypto.Signer.
var _ crypto.Signer = (*RSASigner)(nil)

// NewRSASigner binds an RSA private key to a registry.
func NewRSASigner(reg *Registry, key *rsa.PrivateKey) (*RSASigner, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if key == nil || key.N == nil || key.D == nil {
		return nil, &SignatureError{Op: "rsa-signer", Detail: "missing private key", Err: ErrInvalidKey}
	}
	if err := key.Validate(); err != nil {
		return nil, &SignatureError{Op: "rsa-signer", Detail: err.Error(), Err: ErrInvalidKey}
	}
	key.Precompute()
	return &RSASigner{reg: reg, key: key}, nil
}

// Public returns the RSA public key.
func (s *RSASigner) Public() crypto.PublicKey {
	return &s.key.PublicKey
}

// Sign implements crypto.Signer. *rsa.PSSOptions selects EMSA-PSS with
// MGF1 over the same digest; any other opts selects PKCS#1 v1.5.
func (s *RSASigner) Sign(random io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	h, err := HashFromCrypto(opts.HashFunc())
	if err != nil {
		return nil, err
	}

	if pssOpts, ok := opts.(*rsa.PSSOptions); ok {
		saltLen := pssOpts.SaltLength
		if saltLen == rsa.PSSSaltLengthAuto || saltLen == rsa.PSSSaltLengthEqualsHash {
			saltLen = h.Size()
		}
		em, err := EncodePSS(h, digest, h, saltLen, s.key.N.BitLen(), random)
		if err != nil {
			return nil, err
		}
		return s.privateOp(random, em)
	}

	em, err := s.reg.EncodePKCS1v15(digest, h, s.key.N.BitLen())
	if err != nil {
		return nil, err
	}
	return s.privateOp(random, em)
}

// SignDigest signs a precomputed digest with an RSA SignAlgo.
func (s *RSASigner) SignDigest(random io.Reader, alg SignAlgo, digest []byte) ([]byte, error) {
	bits := s.key.N.BitLen()

	var em []byte
	var err error
	switch alg.Family() {
	case SignRSAPKCS1:
		em, err = s.reg.EncodePKCS1v15(digest, alg.Hash(), bits)
	case SignRSAPSS:
		em, err = EncodePSS(alg.Hash(), digest, alg.MGFHash(), alg.SaltLength(), bits, random)
	default:
		return nil, &SignatureError{Op: "rsa-sign", Detail: alg.Name(), Err: ErrUnsupportedAlgorithm}
	}
	if err != nil {
		return nil, err
	}
	return s.privateOp(random, em)
}

// SignMessage hashes message with the digest of alg and signs it.
func (s *RSASigner) SignMessage(random io.Reader, alg SignAlgo, message []byte) ([]byte, error) {
	if !alg.Hash().IsValid() {
		return nil, &SignatureError{Op: "rsa-sign", Detail: alg.Name(), Err: ErrUnsupportedAlgorithm}
	}
	return s.SignDigest(random, alg, alg.Hash().Hash(message))
}

// privateOp computes em^d mod n with base blinding and checks the result
// against the public exponent before releasing it.
func (s *RSASigner) privateOp(random io.Reader, em []byte) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}

	key := s.key
	n := key.N
	k := (n.BitLen() + 7) / 8
	m := new(big.Int).SetBytes(em)
	if m.Cmp(n) >= 0 {
		return nil, &SignatureError{Op: "rsa-sign", Detail: "encoded block exceeds modulus", Err: ErrDataTooLong}
	}

	e := big.NewInt(int64(key.E))

	// r is a random unit mod n; m is replaced by m * r^e.
	var r, rInv *big.Int
	for {
		var err error
		r, err = rand.Int(random, n)
		if err != nil {
			return nil, err
		}
		if r.Sign() == 0 {
			continue
		}
		rInv = new(big.Int).ModInverse(r, n)
		if rInv != nil {
			break
		}
	}
	blinded := new(big.Int).Exp(r, e, n)
	blinded.Mul(blinded, m).Mod(blinded, n)

	c := s.decrypt(blinded)
	c.Mul(c, rInv).Mod(c, n)

	// fault check
	if check := new(big.Int).Exp(c, e, n); check.Cmp(m) != 0 {
		return nil, &SignatureError{Op: "rsa-sign", Err: errors.New("private-key operation failed consistency check")}
	}

	return c.FillBytes(make([]byte, k)), nil
}

// decrypt computes c^d mod n, using CRT when the key has two primes.
func (s *RSASigner) decrypt(c *big.Int) *big.Int {
	key := s.key
	pc := key.Precomputed
	if len(key.Primes) != 2 || pc.Dp == nil || pc.Dq == nil || pc.Qinv == nil {
		return new(big.Int).Exp(c, key.D, key.N)
	}

	p, q := key.Primes[0], key.Primes[1]
	m1 := new(big.Int).Exp(c, pc.Dp, p)
	m2 := new(big.Int).Exp(c, pc.Dq, q)
	// m = m2 + q * ((m1 - m2) * qInv mod p)
	h := new(big.Int).Sub(m1, m2)
	h.Mul(h, pc.Qinv).Mod(h, p)
	h.Mul(h, q).Add(h, m2)
	return h
}

// rsaPublicOp returns sig^e mod n as a k-byte block.
func rsaPublicOp(pub *rsa.PublicKey, sig []byte) ([]byte, error) {
	k := (pub.N.BitLen() + 7) / 8
	if len(sig) != k {
		return nil, newSizeError("rsa-verify", ErrVerification, "signature %d bytes, modulus %d bytes", len(sig), k)
	}
	c := new(big.Int).SetBytes(sig)
	if c.Cmp(pub.N) >= 0 {
		return nil, &SignatureError{Op: "rsa-verify", Detail: "signature exceeds modulus", Err: ErrVerification}
	}
	m := new(big.Int).Exp(c, big.NewInt(int64(pub.E)), pub.N)
	return m.FillBytes(make([]byte, k)), nil
}

// verifyRSADigest checks sig over digest for an RSA SignAlgo.
func verifyRSADigest(reg *Registry, pub *rsa.PublicKey, alg SignAlgo, digest, sig []byte) error {
	em, err := rsaPublicOp(pub, sig)
	if err != nil {
		return err
	}
	bits := pub.N.BitLen()

	switch alg.Family() {
	case SignRSAPKCS1:
		expected, err := reg.EncodePKCS1v15(digest, alg.Hash(), bits)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare(em, expected) != 1 {
			return &SignatureError{Op: "rsa-verify", Detail: alg.Name(), Err: ErrVerification}
		}
		return nil
	case SignRSAPSS:
		// The PSS block is one byte shorter when modulusBits-1 is a multiple of 8.
		emLen := (bits - 1 + 7) / 8
		if len(em) > emLen {
			if em[0] != 0 {
				return &SignatureError{Op: "rsa-verify", Detail: "non-zero leading byte", Err: ErrVerification}
			}
			em = em[len(em)-emLen:]
		}
		return VerifyPSS(alg.Hash(), digest, em, alg.MGFHash(), alg.SaltLength(), bits)
	default:
		return &SignatureError{Op: "rsa-verify", Detail: fmt.Sprintf("%s with RSA key", alg), Err: ErrUnsupportedAlgorithm}
	}
}
