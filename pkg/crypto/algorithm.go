package crypto

import (
	"encoding/asn1"
	"fmt"
	"sort"
	"strings"
)

// KeyFamily identifies the public-key algorithm family of a verification key.
type KeyFamily int

// Supported key families.
const (
	FamilyUnknown KeyFamily = iota
	FamilyRSA
	FamilyDSA
	FamilyEC
	FamilyEd25519
	FamilyEd448
	FamilyX25519
	FamilyX448
)

var keyFamilyNames = map[KeyFamily]string{
	FamilyRSA:     "RSA",
	FamilyDSA:     "DSA",
	FamilyEC:      "EC",
	FamilyEd25519: "ED25519",
	FamilyEd448:   "ED448",
	FamilyX25519:  "X25519",
	FamilyX448:    "X448",
}

// String returns the upper-case algorithm name of the family.
func (f KeyFamily) String() string {
	if name, ok := keyFamilyNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsEdDSA returns true for Edwards-curve signature keys.
func (f KeyFamily) IsEdDSA() bool {
	return f == FamilyEd25519 || f == FamilyEd448
}

// IsXDH returns true for Montgomery-curve key-agreement keys.
func (f KeyFamily) IsXDH() bool {
	return f == FamilyX25519 || f == FamilyX448
}

// ParseKeyFamily maps a public-key algorithm name to its family.
// Matching is case-insensitive; "EC" and "ECDSA" both select FamilyEC.
func ParseKeyFamily(name string) (KeyFamily, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "RSA":
		return FamilyRSA, nil
	case "DSA":
		return FamilyDSA, nil
	case "EC", "ECDSA":
		return FamilyEC, nil
	case "ED25519":
		return FamilyEd25519, nil
	case "ED448":
		return FamilyEd448, nil
	case "X25519":
		return FamilyX25519, nil
	case "X448":
		return FamilyX448, nil
	default:
		return FamilyUnknown, &SignatureError{
			Op:     "resolve",
			Detail: "unknown key algorithm of the public key " + name,
			Err:    ErrUnsupportedAlgorithm,
		}
	}
}

// SignFamily categorizes signature algorithms.
type SignFamily int

// Signature algorithm families.
const (
	SignUnknown SignFamily = iota
	SignRSAPKCS1
	SignRSAPSS
	SignDSA
	SignECDSA
	SignPlainECDSA
	SignEdDSA
	SignDHPOP
)

var signFamilyNames = map[SignFamily]string{
	SignRSAPKCS1:   "RSA-PKCS1",
	SignRSAPSS:     "RSA-PSS",
	SignDSA:        "DSA",
	SignECDSA:      "ECDSA",
	SignPlainECDSA: "PLAIN-ECDSA",
	SignEdDSA:      "EdDSA",
	SignDHPOP:      "DHPOP",
}

// String returns the family name.
func (f SignFamily) String() string {
	if name, ok := signFamilyNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// KeyFamilies returns the key families able to verify this signature family.
func (f SignFamily) KeyFamilies() []KeyFamily {
	switch f {
	case SignRSAPKCS1, SignRSAPSS:
		return []KeyFamily{FamilyRSA}
	case SignDSA:
		return []KeyFamily{FamilyDSA}
	case SignECDSA, SignPlainECDSA:
		return []KeyFamily{FamilyEC}
	case SignEdDSA:
		return []KeyFamily{FamilyEd25519, FamilyEd448}
	case SignDHPOP:
		return []KeyFamily{FamilyX25519, FamilyX448}
	default:
		return nil
	}
}

// SignAlgo describes a signature algorithm. Values are immutable; the hash,
// MGF hash and salt length of RSA-PSS variants are fixed by their name.
type SignAlgo struct {
	name    string
	family  SignFamily
	hash    HashAlgo
	mgfHash HashAlgo
	saltLen int
	oid     asn1.ObjectIdentifier
}

// Name returns the canonical algorithm name, e.g. "SHA256withRSAandMGF1".
func (a SignAlgo) Name() string { return a.name }

// String implements fmt.Stringer.
func (a SignAlgo) String() string { return a.name }

// Family returns the signature family.
func (a SignAlgo) Family() SignFamily { return a.family }

// Hash returns the content digest, or HashUnknown for pure EdDSA.
func (a SignAlgo) Hash() HashAlgo { return a.hash }

// MGFHash returns the MGF1 digest of RSA-PSS algorithms.
func (a SignAlgo) MGFHash() HashAlgo { return a.mgfHash }

// SaltLength returns the RSA-PSS salt length in bytes.
func (a SignAlgo) SaltLength() int { return a.saltLen }

// OID returns the algorithm identifier OID.
func (a SignAlgo) OID() asn1.ObjectIdentifier { return a.oid }

// IsRSAPSS returns true for RSASSA-PSS algorithms.
func (a SignAlgo) IsRSAPSS() bool { return a.family == SignRSAPSS }

// IsZero reports whether a is the zero value.
func (a SignAlgo) IsZero() bool { return a.family == SignUnknown }

func rsaPKCS1(name string, h HashAlgo, oid asn1.ObjectIdentifier) SignAlgo {
	return SignAlgo{name: name, family: SignRSAPKCS1, hash: h, oid: oid}
}

// rsaPSS derives MGF hash and salt length from the content digest.
func rsaPSS(name string, h HashAlgo, oid asn1.ObjectIdentifier) SignAlgo {
	return SignAlgo{name: name, family: SignRSAPSS, hash: h, mgfHash: h, saltLen: h.Size(), oid: oid}
}

func hashed(name string, family SignFamily, h HashAlgo, oid asn1.ObjectIdentifier) SignAlgo {
	return SignAlgo{name: name, family: family, hash: h, oid: oid}
}

var (
	oidRSASSAPSS = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidBSIPlain  = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 1, 1, 4, 1}
)

func plainOID(arc int) asn1.ObjectIdentifier {
	return append(append(asn1.ObjectIdentifier{}, oidBSIPlain...), arc)
}

// Signature algorithms.
var (
	SHA1WithRSA     = rsaPKCS1("SHA1withRSA", SHA1, asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5})
	SHA224WithRSA   = rsaPKCS1("SHA224withRSA", SHA224, asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 14})
	SHA256WithRSA   = rsaPKCS1("SHA256withRSA", SHA256, asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11})
	SHA384WithRSA   = rsaPKCS1("SHA384withRSA", SHA384, asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12})
	SHA512WithRSA   = rsaPKCS1("SHA512withRSA", SHA512, asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13})
	SHA3_224WithRSA = rsaPKCS1("SHA3-224withRSA", SHA3_224, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 13})
	SHA3_256WithRSA = rsaPKCS1("SHA3-256withRSA", SHA3_256, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 14})
	SHA3_384WithRSA = rsaPKCS1("SHA3-384withRSA", SHA3_384, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 15})
	SHA3_512WithRSA = rsaPKCS1("SHA3-512withRSA", SHA3_512, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 16})

	SHA1WithRSAPSS     = rsaPSS("SHA1withRSAandMGF1", SHA1, oidRSASSAPSS)
	SHA224WithRSAPSS   = rsaPSS("SHA224withRSAandMGF1", SHA224, oidRSASSAPSS)
	SHA256WithRSAPSS   = rsaPSS("SHA256withRSAandMGF1", SHA256, oidRSASSAPSS)
	SHA384WithRSAPSS   = rsaPSS("SHA384withRSAandMGF1", SHA384, oidRSASSAPSS)
	SHA512WithRSAPSS   = rsaPSS("SHA512withRSAandMGF1", SHA512, oidRSASSAPSS)
	SHA3_224WithRSAPSS = rsaPSS("SHA3-224withRSAandMGF1", SHA3_224, oidRSASSAPSS)
	SHA3_256WithRSAPSS = rsaPSS("SHA3-256withRSAandMGF1", SHA3_256, oidRSASSAPSS)
	SHA3_384WithRSAPSS = rsaPSS("SHA3-384withRSAandMGF1", SHA3_384, oidRSASSAPSS)
	SHA3_512WithRSAPSS = rsaPSS("SHA3-512withRSAandMGF1", SHA3_512, oidRSASSAPSS)
	RSAPSSWithSHAKE128 = rsaPSS("SHAKE128withRSAPSS", SHAKE128, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 6, 30})
	RSAPSSWithSHAKE256 = rsaPSS("SHAKE256withRSAPSS", SHAKE256, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 6, 31})

	SHA1WithDSA   = hashed("SHA1withDSA", SignDSA, SHA1, asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 3})
	SHA224WithDSA = hashed("SHA224withDSA", SignDSA, SHA224, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 1})
	SHA256WithDSA = hashed("SHA256withDSA", SignDSA, SHA256, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 2})

	SHA1WithECDSA     = hashed("SHA1withECDSA", SignECDSA, SHA1, asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 1})
	SHA224WithECDSA   = hashed("SHA224withECDSA", SignECDSA, SHA224, asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 1})
	SHA256WithECDSA   = hashed("SHA256withECDSA", SignECDSA, SHA256, asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2})
	SHA384WithECDSA   = hashed("SHA384withECDSA", SignECDSA, SHA384, asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3})
	SHA512WithECDSA   = hashed("SHA512withECDSA", SignECDSA, SHA512, asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4})
	SHA3_256WithECDSA = hashed("SHA3-256withECDSA", SignECDSA, SHA3_256, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 10})
	SHA3_384WithECDSA = hashed("SHA3-384withECDSA", SignECDSA, SHA3_384, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 11})
	SHA3_512WithECDSA = hashed("SHA3-512withECDSA", SignECDSA, SHA3_512, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 12})
	SHAKE128WithECDSA = hashed("SHAKE128withECDSA", SignECDSA, SHAKE128, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 6, 32})
	SHAKE256WithECDSA = hashed("SHAKE256withECDSA", SignECDSA, SHAKE256, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 6, 33})

	SHA1WithPlainECDSA   = hashed("SHA1withPlainECDSA", SignPlainECDSA, SHA1, plainOID(1))
	SHA224WithPlainECDSA = hashed("SHA224withPlainECDSA", SignPlainECDSA, SHA224, plainOID(2))
	SHA256WithPlainECDSA = hashed("SHA256withPlainECDSA", SignPlainECDSA, SHA256, plainOID(3))
	SHA384WithPlainECDSA = hashed("SHA384withPlainECDSA", SignPlainECDSA, SHA384, plainOID(4))
	SHA512WithPlainECDSA = hashed("SHA512withPlainECDSA", SignPlainECDSA, SHA512, plainOID(5))

	Ed25519 = SignAlgo{name: "Ed25519", family: SignEdDSA, oid: asn1.ObjectIdentifier{1, 3, 101, 112}}
	Ed448   = SignAlgo{name: "Ed448", family: SignEdDSA, oid: asn1.ObjectIdentifier{1, 3, 101, 113}}

	// DHPOP algorithms prove possession of a static X25519/X448 key with a
	// MAC keyed by the Diffie-Hellman shared secret.
	DHPOPX25519SHA256 = hashed("DHPOP-X25519-SHA256", SignDHPOP, SHA256, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45522, 1, 1})
	DHPOPX448SHA512   = hashed("DHPOP-X448-SHA512", SignDHPOP, SHA512, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45522, 1, 2})
)

// signAlgos indexes every predefined SignAlgo by its upper-cased name.
var signAlgos = func() map[string]SignAlgo {
	all := []SignAlgo{
		SHA1WithRSA, SHA224WithRSA, SHA256WithRSA, SHA384WithRSA, SHA512WithRSA,
		SHA3_224WithRSA, SHA3_256WithRSA, SHA3_384WithRSA, SHA3_512WithRSA,
		SHA1WithRSAPSS, SHA224WithRSAPSS, SHA256WithRSAPSS, SHA384WithRSAPSS, SHA512WithRSAPSS,
		SHA3_224WithRSAPSS, SHA3_256WithRSAPSS, SHA3_384WithRSAPSS, SHA3_512WithRSAPSS,
		RSAPSSWithSHAKE128, RSAPSSWithSHAKE256,
		SHA1WithDSA, SHA224WithDSA, SHA256WithDSA,
		SHA1WithECDSA, SHA224WithECDSA, SHA256WithECDSA, SHA384WithECDSA, SHA512WithECDSA,
		SHA3_256WithECDSA, SHA3_384WithECDSA, SHA3_512WithECDSA,
		SHAKE128WithECDSA, SHAKE256WithECDSA,
		SHA1WithPlainECDSA, SHA224WithPlainECDSA, SHA256WithPlainECDSA,
		SHA384WithPlainECDSA, SHA512WithPlainECDSA,
		Ed25519, Ed448,
		DHPOPX25519SHA256, DHPOPX448SHA512,
	}
	m := make(map[string]SignAlgo, len(all))
	for _, a := range all {
		m[strings.ToUpper(a.name)] = a
	}
	return m
}()

// ParseSignAlgo returns the predefined SignAlgo with the given name
// (case-insensitive).
func ParseSignAlgo(name string) (SignAlgo, error) {
	if a, ok := signAlgos[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return a, nil
	}
	return SignAlgo{}, &SignatureError{Op: "parse", Detail: fmt.Sprintf("signature algorithm %q", name), Err: ErrUnsupportedAlgorithm}
}

// SignAlgos returns all predefined signature algorithms sorted by name.
func SignAlgos() []SignAlgo {
	out := make([]SignAlgo, 0, len(signAlgos))
	for _, a := range signAlgos {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// DefaultSignAlgo returns the default signature algorithm for a key family.
// RSA defaults to PSS, as PKCS#1 v1.5 is legacy.
func DefaultSignAlgo(f KeyFamily) (SignAlgo, error) {
	switch f {
	case FamilyRSA:
		return SHA256WithRSAPSS, nil
	case FamilyDSA:
		return SHA256WithDSA, nil
	case FamilyEC:
		return SHA256WithECDSA, nil
	case FamilyEd25519:
		return Ed25519, nil
	case FamilyEd448:
		return Ed448, nil
	case FamilyX25519:
		return DHPOPX25519SHA256, nil
	case FamilyX448:
		return DHPOPX448SHA512, nil
	default:
		return SignAlgo{}, &SignatureError{Op: "default", Detail: f.String(), Err: ErrUnsupportedAlgorithm}
	}
}
