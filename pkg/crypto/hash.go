// Package crypto provides the signature-encoding core of the PKI toolkit:
// digest registry, EMSA-PKCS1-v1.5 and EMSA-PSS encoders, MGF1, DSA-family
// signature format conversion and verification-strategy dispatch.
package crypto

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"
)

// HashAlgo identifies a digest algorithm.
type HashAlgo uint8

// Supported digest algorithms.
const (
	HashUnknown HashAlgo = iota
	SHA1
	SHA224
	SHA256
	SHA384
	SHA512
	SHA3_224
	SHA3_256
	SHA3_384
	SHA3_512
	SHAKE128
	SHAKE256
)

// hashInfo holds the static metadata of a digest algorithm.
type hashInfo struct {
	Name       string
	OID        asn1.ObjectIdentifier
	Size       int
	CryptoHash crypto.Hash
	New        func() hash.Hash
	NewXOF     func() sha3.ShakeHash
}

// hashInfos is indexed by HashAlgo and never modified.
var hashInfos = [...]hashInfo{
	HashUnknown: {Name: "unknown"},
	SHA1: {
		Name:       "SHA1",
		OID:        asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26},
		Size:       20,
		CryptoHash: crypto.SHA1,
		New:        sha1.New,
	},
	SHA224: {
		Name:       "SHA224",
		OID:        asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4},
		Size:       28,
		CryptoHash: crypto.SHA224,
		New:        sha256.New224,
	},
	SHA256: {
		Name:       "SHA256",
		OID:        asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1},
		Size:       32,
		CryptoHash: crypto.SHA256,
		New:        sha256.New,
	},
	SHA384: {
		Name:       "SHA384",
		OID:        asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2},
		Size:       48,
		CryptoHash: crypto.SHA384,
		New:        sha512.New384,
	},
	SHA512: {
		Name:       "SHA512",
		OID:        asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3},
		Size:       64,
		CryptoHash: crypto.SHA512,
		New:        sha512.New,
	},
	SHA3_224: {
		Name:       "SHA3-224",
		OID:        asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 7},
		Size:       28,
		CryptoHash: crypto.SHA3_224,
		New:        sha3.New224,
	},
	SHA3_256: {
		Name:       "SHA3-256",
		OID:        asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 8},
		Size:       32,
		CryptoHash: crypto.SHA3_256,
		New:        sha3.New256,
	},
	SHA3_384: {
		Name:       "SHA3-384",
		OID:        asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 9},
		Size:       48,
		CryptoHash: crypto.SHA3_384,
		New:        sha3.New384,
	},
	SHA3_512: {
		Name:       "SHA3-512",
		OID:        asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 10},
		Size:       64,
		CryptoHash: crypto.SHA3_512,
		New:        sha3.New512,
	},
	SHAKE128: {
		Name:   "SHAKE128",
		OID:    asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 11},
		Size:   16,
		NewXOF: sha3.NewShake128,
	},
	SHAKE256: {
		Name:   "SHAKE256",
		OID:    asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 12},
		Size:   32,
		NewXOF: sha3.NewShake256,
	},
}

func (h HashAlgo) info() hashInfo {
	if int(h) >= len(hashInfos) {
		return hashInfos[HashUnknown]
	}
	return hashInfos[h]
}

// IsValid returns true if the digest algorithm is recognized.
func (h HashAlgo) IsValid() bool {
	return h != HashUnknown && int(h) < len(hashInfos)
}

// String returns the canonical name, e.g. "SHA256" or "SHA3-256".
func (h HashAlgo) String() string {
	return h.info().Name
}

// Size returns the output length in bytes. For the SHAKE family this is the
// default output length used when the XOF is treated as a fixed-size digest.
func (h HashAlgo) Size() int {
	return h.info().Size
}

// OID returns the ASN.1 object identifier of the digest algorithm.
func (h HashAlgo) OID() asn1.ObjectIdentifier {
	return h.info().OID
}

// CryptoHash returns the crypto.Hash value, or 0 for the SHAKE family.
func (h HashAlgo) CryptoHash() crypto.Hash {
	return h.info().CryptoHash
}

// IsXOF returns true for extendable-output functions (SHAKE128, SHAKE256).
func (h HashAlgo) IsXOF() bool {
	return h.info().NewXOF != nil
}

// New returns a fresh hash.Hash. SHAKE algorithms return a hash.Hash whose
// Sum produces Size() bytes.
func (h HashAlgo) New() hash.Hash {
	info := h.info()
	if info.NewXOF != nil {
		return &fixedXOF{xof: info.NewXOF(), size: info.Size}
	}
	if info.New == nil {
		panic("crypto: requested hash function " + info.Name + " is unavailable")
	}
	return info.New()
}

// Hash computes the digest of data with Size() bytes of output.
func (h HashAlgo) Hash(data ...[]byte) []byte {
	d := h.New()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Sum computes outLen bytes of extendable output over data.
// It is only defined for SHAKE algorithms.
func (h HashAlgo) Sum(data []byte, outLen int) ([]byte, error) {
	info := h.info()
	if info.NewXOF == nil {
		return nil, fmt.Errorf("%s is not an extendable-output function", info.Name)
	}
	xof := info.NewXOF()
	xof.Write(data)
	out := make([]byte, outLen)
	_, _ = xof.Read(out) // ShakeHash.Read never returns an error
	return out, nil
}

// fixedXOF adapts a SHAKE instance to hash.Hash with a fixed output size.
type fixedXOF struct {
	xof  sha3.ShakeHash
	size int
}

func (f *fixedXOF) Write(p []byte) (int, error) { return f.xof.Write(p) }
func (f *fixedXOF) Reset()                      { f.xof.Reset() }
func (f *fixedXOF) Size() int                   { return f.size }
func (f *fixedXOF) BlockSize() int              { return f.xof.BlockSize() }

func (f *fixedXOF) Sum(b []byte) []byte {
	out := make([]byte, f.size)
	_, _ = f.xof.Clone().Read(out)
	return append(b, out...)
}

// digestPKCSPrefixes holds the DER DigestInfo prefix (AlgorithmIdentifier with
// NULL parameters and the OCTET STRING header) for PKCS#1 v1.5.
var digestPKCSPrefixes = map[HashAlgo]string{
	SHA1:     "3021300906052b0e03021a05000414",
	SHA224:   "302d300d06096086480165030402040500041c",
	SHA256:   "3031300d060960864801650304020105000420",
	SHA384:   "3041300d060960864801650304020205000430",
	SHA512:   "3051300d060960864801650304020305000440",
	SHA3_224: "302d300d06096086480165030402070500041c",
	SHA3_256: "3031300d060960864801650304020805000420",
	SHA3_384: "3041300d060960864801650304020905000430",
	SHA3_512: "3051300d060960864801650304020a05000440",
}

// Registry is the read-only lookup table for digest algorithms and their
// PKCS#1 v1.5 DigestInfo prefixes. It is built once and shared.
type Registry struct {
	byName   map[string]HashAlgo
	prefixes map[HashAlgo][]byte
}

// NewRegistry builds a registry of all supported digest algorithms.
// It panics if a prefix does not match the OID and size of its algorithm.
func NewRegistry() *Registry {
	r := &Registry{
		byName:   make(map[string]HashAlgo),
		prefixes: make(map[HashAlgo][]byte),
	}

	for i := range hashInfos {
		h := HashAlgo(i)
		if !h.IsValid() {
			continue
		}
		r.byName[normalizeHashName(h.String())] = h
		r.byName[h.OID().String()] = h
	}

	for h, hexPrefix := range digestPKCSPrefixes {
		prefix, err := hex.DecodeString(hexPrefix)
		if err != nil {
			panic(fmt.Sprintf("crypto: invalid DigestInfo prefix for %s: %v", h, err))
		}
		if err := checkDigestPrefix(h, prefix); err != nil {
			panic("crypto: " + err.Error())
		}
		r.prefixes[h] = prefix
	}

	return r
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Lookup finds a digest algorithm by name or dotted OID.
// Names are case-insensitive and ignore '-' and '_' ("SHA-256", "sha3_256").
func (r *Registry) Lookup(name string) (HashAlgo, error) {
	if h, ok := r.byName[normalizeHashName(name)]; ok {
		return h, nil
	}
	if h, ok := r.byName[name]; ok {
		return h, nil
	}
	return HashUnknown, &SignatureError{Op: "lookup", Detail: name, Err: ErrHashNotFound}
}

// MustLookup is like Lookup but panics on unknown names.
// It is intended for static initialization.
func (r *Registry) MustLookup(name string) HashAlgo {
	h, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return h
}

// PrefixFor returns a copy of the DigestInfo prefix for h.
// A valid HashAlgo without a prefix yields ErrMissingPrefix, which indicates
// a registry defect rather than bad input.
func (r *Registry) PrefixFor(h HashAlgo) ([]byte, error) {
	prefix, ok := r.prefixes[h]
	if !ok {
		return nil, &SignatureError{Op: "prefix", Detail: h.String(), Err: ErrMissingPrefix}
	}
	out := make([]byte, len(prefix))
	copy(out, prefix)
	return out, nil
}

// HasPrefix reports whether h can be used with EMSA-PKCS1-v1.5.
func (r *Registry) HasPrefix(h HashAlgo) bool {
	_, ok := r.prefixes[h]
	return ok
}

// Hashes returns all registered digest algorithms in declaration order.
func (r *Registry) Hashes() []HashAlgo {
	seen := make(map[HashAlgo]bool)
	var out []HashAlgo
	for _, h := range r.byName {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// checkDigestPrefix verifies that prefix encodes the OID of h and announces
// an OCTET STRING of h.Size() bytes.
func checkDigestPrefix(h HashAlgo, prefix []byte) error {
	if len(prefix) < 2 || prefix[len(prefix)-2] != 0x04 || int(prefix[len(prefix)-1]) != h.Size() {
		return fmt.Errorf("DigestInfo prefix for %s does not announce a %d-byte digest", h, h.Size())
	}
	oid, err := asn1.Marshal(h.OID())
	if err != nil {
		return err
	}
	if !strings.Contains(string(prefix), string(oid)) {
		return fmt.Errorf("DigestInfo prefix for %s does not contain its OID", h)
	}
	if int(prefix[1])+2 != len(prefix)+h.Size() {
		return fmt.Errorf("DigestInfo prefix for %s has inconsistent length", h)
	}
	return nil
}

func normalizeHashName(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "")
	n = strings.ReplaceAll(n, "_", "")
	return n
}

// HashFromCrypto maps a crypto.Hash to its HashAlgo.
func HashFromCrypto(h crypto.Hash) (HashAlgo, error) {
	for i := range hashInfos {
		if ha := HashAlgo(i); ha.IsValid() && h != 0 && hashInfos[i].CryptoHash == h {
			return ha, nil
		}
	}
	return HashUnknown, &SignatureError{Op: "lookup", Detail: fmt.Sprintf("crypto.Hash(%d)", h), Err: ErrHashNotFound}
}
