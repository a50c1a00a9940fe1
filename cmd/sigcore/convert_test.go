package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"testing"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

func resetConvertFlags() {
	convertInput = ""
	convertHex = ""
	convertKeyBits = 0
	convertOutput = ""
	convertFormat = "hex"
	resetFlagState(convertToDERCmd, convertToPlainCmd)
}

// =============================================================================
// Convert Tests
// =============================================================================

func TestF_Convert_RoundTrip(t *testing.T) {
	tc := newTestContext(t)
	resetGlobalFlags(t)
	resetConvertFlags()

	priv, _ := generateECDSAKeyPair(t)
	digest := sha256.Sum256([]byte("round trip"))
	der, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	assertNoError(t, err)
	derPath := tc.path("sig.der")
	if err := os.WriteFile(derPath, der, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	plainPath := tc.path("sig.plain")
	_, err = executeCommand(rootCmd, "convert", "to-plain", "--in", derPath, "--key-bits", "256", "--out", plainPath)
	assertNoError(t, err)

	plain := tc.readFile("sig.plain")
	if len(plain) != 64 {
		t.Fatalf("Expected 64-byte plain signature, got %d", len(plain))
	}

	resetConvertFlags()
	out, err := executeCommand(rootCmd, "convert", "to-der", "--in", plainPath)
	assertNoError(t, err)

	got, err := hex.DecodeString(strings.TrimSpace(out))
	assertNoError(t, err)
	if !bytes.Equal(got, der) {
		t.Errorf("Expected original DER signature\n got %x\nwant %x", got, der)
	}
}

func TestF_Convert_ToDER_Base64(t *testing.T) {
	resetGlobalFlags(t)
	resetConvertFlags()

	// r = 1, s = 2
	out, err := executeCommand(rootCmd, "convert", "to-der", "--hex", "0001:0002", "--format", "base64")
	assertNoError(t, err)
	if got := strings.TrimSpace(out); got != "MAYCAQECAQI=" {
		t.Errorf("Expected MAYCAQECAQI=, got %s", got)
	}
}

func TestF_Convert_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"odd plain length", []string{"to-der", "--hex", "010203"}, pkicrypto.ErrOddLength},
		{"malformed DER", []string{"to-plain", "--hex", "3003020101", "--key-bits", "256"}, pkicrypto.ErrMalformedEncoding},
		{"integer too large", []string{"to-plain", "--hex", "3008020301ffff020101", "--key-bits", "16"}, pkicrypto.ErrSignatureTooLarge},
		{"no input", []string{"to-der"}, nil},
		{"missing key bits", []string{"to-plain", "--hex", "3006020101020102"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobalFlags(t)
			resetConvertFlags()

			args := append([]string{"convert"}, tt.args...)
			_, err := executeCommand(rootCmd, args...)
			assertError(t, err)
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
