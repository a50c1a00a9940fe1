package crypto

import (
	"crypto"
	"crypto/x509"
	"sync"
)

// Verifier is a verification strategy bound to one public key.
// Implementations are immutable and safe for concurrent use.
type Verifier interface {
	// Family returns the key family of the bound key.
	Family() KeyFamily

	// PublicKey returns the bound key.
	PublicKey() crypto.PublicKey

	// Verify checks signature over message with alg.
	Verify(alg SignAlgo, message, signature []byte) error
}

// DigestVerifier is implemented by verifiers of hash-then-sign algorithms
// that accept a precomputed digest.
type DigestVerifier interface {
	Verifier

	// VerifyDigest checks signature over a digest computed with alg.Hash().
	VerifyDigest(alg SignAlgo, digest, signature []byte) error
}

// StaticKeyCertPair is the verifier's own static Diffie-Hellman key and the
// certificate carrying its public half. It is required to check DHPOP
// signatures made with X25519 or X448 keys.
type StaticKeyCertPair struct {
	PrivateKey  crypto.PrivateKey
	Certificate *x509.Certificate
}

// verifierBuilder binds a key of its family to a Verifier.
// Builders hold no per-key state.
type verifierBuilder interface {
	build(pub crypto.PublicKey) (Verifier, error)
}

// Dispatcher resolves public keys to verification strategies.
// Builders for RSA, DSA and EC are created on first use and cached per
// family for the lifetime of the Dispatcher.
type Dispatcher struct {
	reg *Registry

	mu       sync.Mutex
	builders map[KeyFamily]verifierBuilder
}

// NewDispatcher creates a dispatcher backed by reg, or by the default
// registry when reg is nil.
func NewDispatcher(reg *Registry) *Dispatcher {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Dispatcher{
		reg:      reg,
		builders: make(map[KeyFamily]verifierBuilder),
	}
}

// Registry returns the digest registry used by the dispatcher.
func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// Resolve returns a verifier for pub, selected by the case-insensitive key
// algorithm name ("RSA", "DSA", "EC", "ECDSA", "ED25519", "ED448",
// "X25519", "X448"). aux is only consulted for X25519 and X448.
func (d *Dispatcher) Resolve(keyAlgorithm string, pub crypto.PublicKey, aux *StaticKeyCertPair) (Verifier, error) {
	family, err := ParseKeyFamily(keyAlgorithm)
	if err != nil {
		return nil, err
	}
	return d.resolveFamily(family, pub, aux)
}

// ResolveKey is like Resolve but derives the family from the key type.
func (d *Dispatcher) ResolveKey(pub crypto.PublicKey, aux *StaticKeyCertPair) (Verifier, error) {
	family, err := KeyFamilyOf(pub)
	if err != nil {
		return nil, err
	}
	return d.resolveFamily(family, pub, aux)
}

func (d *Dispatcher) resolveFamily(family KeyFamily, pub crypto.PublicKey, aux *StaticKeyCertPair) (Verifier, error) {
	switch family {
	case FamilyEd25519, FamilyEd448:
		return newEdDSAVerifier(family, pub)
	case FamilyX25519, FamilyX448:
		if aux == nil || aux.PrivateKey == nil || aux.Certificate == nil {
			return nil, &SignatureError{Op: "resolve", Detail: family.String(), Err: ErrMissingAuxiliaryKey}
		}
		return newDHPOPVerifier(family, pub, aux)
	case FamilyRSA, FamilyDSA, FamilyEC:
		return d.builder(family).build(pub)
	default:
		return nil, &SignatureError{Op: "resolve", Detail: family.String(), Err: ErrUnsupportedAlgorithm}
	}
}

// builder returns the cached builder of family, creating it if absent.
func (d *Dispatcher) builder(family KeyFamily) verifierBuilder {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.builders[family]; ok {
		return b
	}

	var b verifierBuilder
	switch family {
	case FamilyRSA:
		b = rsaBuilder{reg: d.reg}
	case FamilyDSA:
		b = dsaBuilder{}
	case FamilyEC:
		b = ecBuilder{}
	}
	d.builders[family] = b
	return b
}

// cachedFamilies returns the number of cached builders.
func (d *Dispatcher) cachedFamilies() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.builders)
}

// hashMessage hashes message with the digest of alg.
func hashMessage(alg SignAlgo, message []byte) ([]byte, error) {
	if !alg.Hash().IsValid() {
		return nil, &SignatureError{Op: "verify", Detail: alg.Name() + " has no digest", Err: ErrUnsupportedAlgorithm}
	}
	return alg.Hash().Hash(message), nil
}

// checkFamily rejects algorithms that cannot be verified with family.
func checkFamily(family KeyFamily, alg SignAlgo) error {
	for _, f := range alg.Family().KeyFamilies() {
		if f == family {
			return nil
		}
	}
	return &SignatureError{Op: "verify", Detail: alg.Name() + " with " + family.String() + " key", Err: ErrUnsupportedAlgorithm}
}
