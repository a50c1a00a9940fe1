package crypto

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// =============================================================================
// [Unit] DSA-family Signature Conversion Tests
// =============================================================================

func TestU_DSAToPlain_SmallIntegers(t *testing.T) {
	plain, err := DSAToPlain(big.NewInt(1), big.NewInt(2), 256)
	if err != nil {
		t.Fatalf("DSAToPlain() error = %v", err)
	}

	want := make([]byte, 64)
	want[31] = 0x01
	want[63] = 0x02
	if diff := cmp.Diff(want, plain); diff != "" {
		t.Fatalf("DSAToPlain() mismatch (-want +got):\n%s", diff)
	}

	der, err := DSAPlainToDER(plain)
	if err != nil {
		t.Fatalf("DSAPlainToDER() error = %v", err)
	}
	if want := []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}; !bytes.Equal(der, want) {
		t.Errorf("DSAPlainToDER() = %x, want %x", der, want)
	}

	back, err := DSADERToPlain(der, 256)
	if err != nil {
		t.Fatalf("DSADERToPlain() error = %v", err)
	}
	if !bytes.Equal(back, plain) {
		t.Errorf("Round trip = %x, want %x", back, plain)
	}
}

func TestU_DSADERToPlain_FieldWidths(t *testing.T) {
	tests := []struct {
		name    string
		keyBits int
		r, s    *big.Int
	}{
		{"P-256 full width", 256, new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(7)},
		{"P-521 odd bits", 521, new(big.Int).Lsh(big.NewInt(1), 520), new(big.Int).Lsh(big.NewInt(3), 500)},
		{"DSA 160", 160, new(big.Int).SetBytes(bytes.Repeat([]byte{0xFF}, 20)), big.NewInt(1)},
		{"zero", 256, big.NewInt(0), big.NewInt(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			der, err := MarshalDSASignature(tt.r, tt.s)
			if err != nil {
				t.Fatalf("MarshalDSASignature() error = %v", err)
			}

			// encoding/asn1 must agree on the DER form.
			want, _ := asn1.Marshal(struct{ R, S *big.Int }{tt.r, tt.s})
			if !bytes.Equal(der, want) {
				t.Errorf("MarshalDSASignature() = %x, want %x", der, want)
			}

			plain, err := DSADERToPlain(der, tt.keyBits)
			if err != nil {
				t.Fatalf("DSADERToPlain() error = %v", err)
			}
			fieldLen := (tt.keyBits + 7) / 8
			if len(plain) != 2*fieldLen {
				t.Fatalf("Expected %d bytes, got %d", 2*fieldLen, len(plain))
			}
			if new(big.Int).SetBytes(plain[:fieldLen]).Cmp(tt.r) != 0 ||
				new(big.Int).SetBytes(plain[fieldLen:]).Cmp(tt.s) != 0 {
				t.Error("Plain form does not carry r and s")
			}

			der2, err := DSAPlainToDER(plain)
			if err != nil {
				t.Fatalf("DSAPlainToDER() error = %v", err)
			}
			if !bytes.Equal(der, der2) {
				t.Errorf("DER round trip = %x, want %x", der2, der)
			}
		})
	}
}

func TestU_DSAPlainToDER_OddLength(t *testing.T) {
	_, err := DSAPlainToDER(make([]byte, 63))
	assertErrorIs(t, err, ErrOddLength)
}

func TestU_DSAPlainToDER_Empty(t *testing.T) {
	der, err := DSAPlainToDER(nil)
	if err != nil {
		t.Fatalf("DSAPlainToDER(nil) error = %v", err)
	}
	r, s, err := ParseDSASignature(der)
	if err != nil || r.Sign() != 0 || s.Sign() != 0 {
		t.Errorf("Expected r = s = 0, got %v, %v, %v", r, s, err)
	}
}

func TestU_DSADERToPlain_Malformed(t *testing.T) {
	valid, _ := MarshalDSASignature(big.NewInt(1), big.NewInt(2))

	tests := []struct {
		name string
		der  []byte
	}{
		{"empty", nil},
		{"truncated", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x00)},
		{"one integer", []byte{0x30, 0x03, 0x02, 0x01, 0x01}},
		{"three integers", []byte{0x30, 0x09, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02, 0x02, 0x01, 0x03}},
		{"not a sequence", []byte{0x31, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}},
		{"empty integer", []byte{0x30, 0x05, 0x02, 0x00, 0x02, 0x01, 0x02}},
		{"long-form length", []byte{0x30, 0x81, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}},
		{"octet string", []byte{0x30, 0x06, 0x04, 0x01, 0x01, 0x02, 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DSADERToPlain(tt.der, 256)
			assertErrorIs(t, err, ErrMalformedEncoding)
		})
	}
}

func TestU_DSADERToPlain_TooLarge(t *testing.T) {
	r := new(big.Int).Lsh(big.NewInt(1), 256) // 257 bits
	der, _ := MarshalDSASignature(r, big.NewInt(1))

	_, err := DSADERToPlain(der, 256)
	assertErrorIs(t, err, ErrSignatureTooLarge)

	// 257 bits still fit into the 33-byte field of a 257..264-bit key.
	if _, err := DSADERToPlain(der, 257); err != nil {
		t.Errorf("DSADERToPlain(257) error = %v", err)
	}
}

func TestU_DSAToPlain_Negative(t *testing.T) {
	_, err := DSAToPlain(big.NewInt(-1), big.NewInt(1), 256)
	assertErrorIs(t, err, ErrMalformedEncoding)

	_, err = DSAToPlain(nil, big.NewInt(1), 256)
	assertErrorIs(t, err, ErrMalformedEncoding)
}

func TestU_DSADERToPlain_UnsignedIntegers(t *testing.T) {
	want := func(r, s byte) []byte {
		plain := make([]byte, 64)
		plain[31], plain[63] = r, s
		return plain
	}

	tests := []struct {
		name string
		der  []byte
		want []byte
	}{
		{"high bit without pad", []byte{0x30, 0x06, 0x02, 0x01, 0x81, 0x02, 0x01, 0x02}, want(0x81, 0x02)},
		{"redundant leading zero", []byte{0x30, 0x07, 0x02, 0x02, 0x00, 0x01, 0x02, 0x01, 0x02}, want(0x01, 0x02)},
		{"both forms", []byte{0x30, 0x08, 0x02, 0x03, 0x00, 0x00, 0xFF, 0x02, 0x01, 0xFE}, want(0xFF, 0xFE)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plain, err := DSADERToPlain(tt.der, 256)
			if err != nil {
				t.Fatalf("DSADERToPlain() error = %v", err)
			}
			if !bytes.Equal(plain, tt.want) {
				t.Errorf("DSADERToPlain() = %x, want %x", plain, tt.want)
			}
		})
	}
}

func TestU_ParseDSASignature_Strict(t *testing.T) {
	for _, der := range [][]byte{
		{0x30, 0x06, 0x02, 0x01, 0x81, 0x02, 0x01, 0x02},
		{0x30, 0x07, 0x02, 0x02, 0x00, 0x01, 0x02, 0x01, 0x02},
	} {
		if _, _, err := ParseDSASignature(der); !errors.Is(err, ErrMalformedEncoding) {
			t.Errorf("ParseDSASignature(%x) error = %v, want %v", der, err, ErrMalformedEncoding)
		}
	}
}

func TestU_DSAToPlain_KeyBitsOutOfRange(t *testing.T) {
	for _, bits := range []int{MaxKeyBits + 1, math.MaxInt} {
		_, err := DSAToPlain(big.NewInt(1), big.NewInt(2), bits)
		assertErrorIs(t, err, ErrSizeOutOfRange)
		if err != nil && !strings.Contains(err.Error(), "keyBits") {
			t.Errorf("Expected error to name keyBits, got %v", err)
		}
	}

	plain, err := DSAToPlain(big.NewInt(1), big.NewInt(2), MaxKeyBits)
	if err != nil {
		t.Fatalf("DSAToPlain(MaxKeyBits) error = %v", err)
	}
	if len(plain) != 2*MaxKeyBits/8 {
		t.Errorf("Expected %d bytes, got %d", 2*MaxKeyBits/8, len(plain))
	}
}
