package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
)

var (
	testRSAKeyOnce sync.Once
	testRSAKey     *rsa.PrivateKey
	testRSAKeyErr  error
)

// rsaTestKey returns a 2048-bit RSA key shared by the package tests.
func rsaTestKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	testRSAKeyOnce.Do(func() {
		testRSAKey, testRSAKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testRSAKeyErr != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", testRSAKeyErr)
	}
	return testRSAKey
}

// errReader fails every read.
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errRandomFailed }

var errRandomFailed = errors.New("entropy source failed")

// zeroReader yields zero bytes.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("Expected error %v, got %v", target, err)
	}
}
