package cose

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/google/go-cmp/cmp"
	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// =============================================================================
// Test Helpers
// =============================================================================

func generateECDSAKey(t *testing.T, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ECDSA key: %v", err)
	}
	return key
}

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

// generateTestCertificate generates a self-signed CA certificate for testing.
func generateTestCertificate(t *testing.T, key crypto.Signer) *x509.Certificate {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Certificate"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return cert
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("Expected error %v, got %v", target, err)
	}
}

// =============================================================================
// [Unit] Algorithm Tests
// =============================================================================

func TestU_COSEAlgorithmFromKey(t *testing.T) {
	edPub, _, _ := ed25519.GenerateKey(rand.Reader)

	tests := []struct {
		name string
		pub  crypto.PublicKey
		want gocose.Algorithm
	}{
		{"P-256", &generateECDSAKey(t, elliptic.P256()).PublicKey, AlgES256},
		{"P-384", &generateECDSAKey(t, elliptic.P384()).PublicKey, AlgES384},
		{"P-521", &generateECDSAKey(t, elliptic.P521()).PublicKey, AlgES512},
		{"Ed25519", edPub, AlgEdDSA},
		{"RSA", &generateRSAKey(t).PublicKey, AlgPS256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := COSEAlgorithmFromKey(tt.pub)
			if err != nil {
				t.Fatalf("COSEAlgorithmFromKey() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", AlgorithmName(tt.want), AlgorithmName(got))
			}
		})
	}

	_, err := COSEAlgorithmFromKey("not a key")
	assertErrorIs(t, err, pkicrypto.ErrUnsupportedAlgorithm)
}

func TestU_SignAlgoFor(t *testing.T) {
	edPub, _, _ := ed25519.GenerateKey(rand.Reader)
	ed448Pub, _, _ := ed448.GenerateKey(rand.Reader)

	tests := []struct {
		alg  gocose.Algorithm
		pub  crypto.PublicKey
		want pkicrypto.SignAlgo
	}{
		{AlgES384, nil, pkicrypto.SHA384WithPlainECDSA},
		{AlgPS512, nil, pkicrypto.SHA512WithRSAPSS},
		{AlgRS256, nil, pkicrypto.SHA256WithRSA},
		{AlgEdDSA, edPub, pkicrypto.Ed25519},
		{AlgEdDSA, ed448Pub, pkicrypto.Ed448},
	}

	for _, tt := range tests {
		got, err := SignAlgoFor(tt.alg, tt.pub)
		if err != nil {
			t.Fatalf("SignAlgoFor(%s) error = %v", AlgorithmName(tt.alg), err)
		}
		if got.Name() != tt.want.Name() {
			t.Errorf("SignAlgoFor(%s) = %s, want %s", AlgorithmName(tt.alg), got, tt.want)
		}
	}

	_, err := SignAlgoFor(gocose.Algorithm(-65535), nil)
	assertErrorIs(t, err, pkicrypto.ErrUnsupportedAlgorithm)
	_, err = SignAlgoFor(AlgEdDSA, &generateECDSAKey(t, elliptic.P256()).PublicKey)
	assertErrorIs(t, err, pkicrypto.ErrUnsupportedAlgorithm)
}

func TestU_ParseAlgorithm(t *testing.T) {
	for _, name := range []string{"ES256", "ES512", "EdDSA", "PS384", "RS512"} {
		alg, err := ParseAlgorithm(name)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q) error = %v", name, err)
		}
		if AlgorithmName(alg) != name {
			t.Errorf("Expected %s, got %s", name, AlgorithmName(alg))
		}
	}

	_, err := ParseAlgorithm("HS256")
	assertErrorIs(t, err, pkicrypto.ErrUnsupportedAlgorithm)
}

// =============================================================================
// [Unit] Signer Tests
// =============================================================================

func TestU_Signer_ECDSAPlainForm(t *testing.T) {
	key := generateECDSAKey(t, elliptic.P521())
	signer, err := NewSigner(key)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	data := []byte("Sig_structure")
	sig, err := signer.Sign(rand.Reader, data)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(sig) != 132 {
		t.Fatalf("Expected 132-byte r || s, got %d", len(sig))
	}

	r := new(big.Int).SetBytes(sig[:66])
	s := new(big.Int).SetBytes(sig[66:])
	digest := pkicrypto.SHA512.Hash(data)
	if !ecdsa.Verify(&key.PublicKey, digest, r, s) {
		t.Error("plain signature does not verify")
	}
}

func TestU_Signer_RejectsAlgorithmForKey(t *testing.T) {
	_, err := NewSignerWithAlgorithm(generateECDSAKey(t, elliptic.P256()), AlgEdDSA)
	assertErrorIs(t, err, pkicrypto.ErrUnsupportedAlgorithm)

	signer, err := NewSignerWithAlgorithm(generateECDSAKey(t, elliptic.P256()), AlgPS256)
	if err != nil {
		t.Fatalf("NewSignerWithAlgorithm() error = %v", err)
	}
	_, err = signer.Sign(rand.Reader, []byte("data"))
	assertErrorIs(t, err, pkicrypto.ErrUnsupportedAlgorithm)
}

// =============================================================================
// [Unit] Sign1 Tests
// =============================================================================

func TestU_Sign1_SignVerify(t *testing.T) {
	_, edPriv, _ := ed25519.GenerateKey(rand.Reader)
	_, ed448Priv, _ := ed448.GenerateKey(rand.Reader)
	rsaKey := generateRSAKey(t)

	tests := []struct {
		name   string
		signer crypto.Signer
		alg    gocose.Algorithm
		want   gocose.Algorithm
	}{
		{"ES256", generateECDSAKey(t, elliptic.P256()), 0, AlgES256},
		{"ES384", generateECDSAKey(t, elliptic.P384()), 0, AlgES384},
		{"ES512", generateECDSAKey(t, elliptic.P521()), 0, AlgES512},
		{"PS256", rsaKey, 0, AlgPS256},
		{"PS512", rsaKey, AlgPS512, AlgPS512},
		{"RS384", rsaKey, AlgRS384, AlgRS384},
		{"Ed25519", edPriv, 0, AlgEdDSA},
		{"Ed448", ed448Priv, 0, AlgEdDSA},
	}

	ctx := context.Background()
	payload := []byte(`{"hello":"cose"}`)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := IssueSign1(ctx, payload, &MessageConfig{
				Signer:      tt.signer,
				Algorithm:   tt.alg,
				ContentType: "application/json",
			})
			if err != nil {
				t.Fatalf("IssueSign1() error = %v", err)
			}

			msg, err := ParseSign1(data)
			if err != nil {
				t.Fatalf("ParseSign1() error = %v", err)
			}
			if msg.Algorithm != tt.want || msg.ContentType != "application/json" {
				t.Errorf("Expected %s application/json, got %s %q", AlgorithmName(tt.want), AlgorithmName(msg.Algorithm), msg.ContentType)
			}

			result, err := VerifySign1(data, &VerifyConfig{PublicKey: tt.signer.Public()})
			if err != nil {
				t.Fatalf("VerifySign1() error = %v", err)
			}
			if diff := cmp.Diff(payload, result.Payload); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestU_Sign1_InteropWithGoCOSE(t *testing.T) {
	key := generateECDSAKey(t, elliptic.P384())
	data, err := IssueSign1(context.Background(), []byte("interop"), &MessageConfig{Signer: key})
	if err != nil {
		t.Fatalf("IssueSign1() error = %v", err)
	}

	var msg gocose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		t.Fatalf("UnmarshalCBOR() error = %v", err)
	}
	verifier, err := gocose.NewVerifier(gocose.AlgorithmES384, &key.PublicKey)
	if err != nil {
		t.Fatalf("gocose.NewVerifier() error = %v", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		t.Errorf("go-cose Verify() error = %v", err)
	}
}

func TestU_Sign1_X5Chain(t *testing.T) {
	key := generateECDSAKey(t, elliptic.P256())
	cert := generateTestCertificate(t, key)

	data, err := IssueSign1(context.Background(), []byte("chained"), &MessageConfig{
		Signer:           key,
		Certificate:      cert,
		IncludeCertChain: true,
	})
	if err != nil {
		t.Fatalf("IssueSign1() error = %v", err)
	}

	msg, err := ParseSign1(data)
	if err != nil {
		t.Fatalf("ParseSign1() error = %v", err)
	}
	if diff := cmp.Diff(CertificateFingerprint(cert), msg.KeyID); diff != "" {
		t.Errorf("kid mismatch (-want +got):\n%s", diff)
	}
	if msg.Certificate == nil || !msg.Certificate.Equal(cert) {
		t.Fatal("x5chain certificate not recovered")
	}

	roots := x509.NewCertPool()
	roots.AddCert(cert)
	result, err := VerifySign1(data, &VerifyConfig{Roots: roots})
	if err != nil {
		t.Fatalf("VerifySign1() error = %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
	if result.SignAlgo.Name() != pkicrypto.SHA256WithPlainECDSA.Name() {
		t.Errorf("Expected %s, got %s", pkicrypto.SHA256WithPlainECDSA, result.SignAlgo)
	}

	other := generateTestCertificate(t, generateECDSAKey(t, elliptic.P256()))
	untrusted := x509.NewCertPool()
	untrusted.AddCert(other)
	result, err = VerifySign1(data, &VerifyConfig{Roots: untrusted})
	if err != nil {
		t.Fatalf("VerifySign1() error = %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Expected a chain warning, got %v", result.Warnings)
	}
}

func TestU_Sign1_Tampered(t *testing.T) {
	key := generateECDSAKey(t, elliptic.P256())
	data, err := IssueSign1(context.Background(), []byte("original"), &MessageConfig{Signer: key})
	if err != nil {
		t.Fatalf("IssueSign1() error = %v", err)
	}

	data[len(data)-1] ^= 0x01
	_, err = VerifySign1(data, &VerifyConfig{PublicKey: &key.PublicKey})
	assertErrorIs(t, err, pkicrypto.ErrVerification)

	var coseErr *COSEError
	if !errors.As(err, &coseErr) || coseErr.Op != "verify" {
		t.Errorf("Expected COSEError with Op verify, got %v", err)
	}
}

func TestU_Sign1_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := IssueSign1(ctx, nil, &MessageConfig{})
	if err == nil {
		t.Error("Expected error without signer")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = IssueSign1(cancelled, nil, &MessageConfig{Signer: generateECDSAKey(t, elliptic.P256())})
	assertErrorIs(t, err, context.Canceled)

	_, err = ParseSign1([]byte{0x84, 0x40, 0xa0, 0xf6, 0x40})
	assertErrorIs(t, err, pkicrypto.ErrMalformedEncoding)

	_, err = ParseSign1([]byte{0xd2, 0xff})
	assertErrorIs(t, err, pkicrypto.ErrMalformedEncoding)

	data, err := IssueSign1(ctx, []byte("no key"), &MessageConfig{Signer: generateECDSAKey(t, elliptic.P256())})
	if err != nil {
		t.Fatalf("IssueSign1() error = %v", err)
	}
	_, err = VerifySign1(data, nil)
	assertErrorIs(t, err, ErrNoVerificationKey)
}
