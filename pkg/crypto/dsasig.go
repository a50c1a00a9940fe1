package crypto

import (
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// DSAPlainToDER converts a plain DSA-family signature (r || s, each half a
// fixed-width unsigned big-endian integer) into DER SEQUENCE { r, s }.
func DSAPlainToDER(signature []byte) ([]byte, error) {
	if len(signature)%2 != 0 {
		return nil, newSizeError("plain-to-der", ErrOddLength, "got %d bytes", len(signature))
	}
	half := len(signature) / 2
	r := new(big.Int).SetBytes(signature[:half])
	s := new(big.Int).SetBytes(signature[half:])
	return MarshalDSASignature(r, s)
}

// DSADERToPlain converts a SEQUENCE { r, s } into the plain form of
// 2*ceil(keyBits/8) bytes. r and s are read as unsigned integers, so a
// missing 0x00 pad or a redundant leading zero, as emitted by some tokens,
// is accepted.
func DSADERToPlain(derSignature []byte, keyBits int) ([]byte, error) {
	r, s, err := parseUnsignedDSASignature(derSignature)
	if err != nil {
		return nil, err
	}
	return DSAToPlain(r, s, keyBits)
}

// DSAToPlain right-aligns r and s into two ceil(keyBits/8)-byte fields.
// Integers wider than the field are rejected, never truncated.
func DSAToPlain(r, s *big.Int, keyBits int) ([]byte, error) {
	if r == nil || s == nil || r.Sign() < 0 || s.Sign() < 0 {
		return nil, &SignatureError{Op: "der-to-plain", Detail: "negative or missing integer", Err: ErrMalformedEncoding}
	}

	if err := checkKeyBits("der-to-plain", "keyBits", keyBits); err != nil {
		return nil, err
	}

	blockSize := (keyBits + 7) / 8
	bitLen := max(r.BitLen(), s.BitLen())
	if keyBits < 0 || (bitLen+7)/8 > blockSize {
		return nil, newSizeError("der-to-plain", ErrSignatureTooLarge,
			"integer of %d bits does not fit in %d bytes", bitLen, max(blockSize, 0))
	}

	plain := make([]byte, 2*blockSize)
	r.FillBytes(plain[:blockSize])
	s.FillBytes(plain[blockSize:])
	return plain, nil
}

// MarshalDSASignature DER-encodes SEQUENCE { INTEGER r, INTEGER s }.
func MarshalDSASignature(r, s *big.Int) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, &SignatureError{Op: "plain-to-der", Detail: err.Error(), Err: ErrMalformedEncoding}
	}
	return out, nil
}

// ParseDSASignature parses a strict DER SEQUENCE { INTEGER r, INTEGER s }.
// Trailing bytes, non-minimal integers and negative values are rejected.
func ParseDSASignature(derSignature []byte) (r, s *big.Int, err error) {
	input := cryptobyte.String(derSignature)
	var inner cryptobyte.String
	r, s = new(big.Int), new(big.Int)

	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, nil, &SignatureError{Op: "der-to-plain", Detail: "expected a single SEQUENCE", Err: ErrMalformedEncoding}
	}
	if !inner.ReadASN1Integer(r) || !inner.ReadASN1Integer(s) || !inner.Empty() {
		return nil, nil, &SignatureError{Op: "der-to-plain", Detail: "expected two INTEGERs", Err: ErrMalformedEncoding}
	}
	if r.Sign() < 0 || s.Sign() < 0 {
		return nil, nil, &SignatureError{Op: "der-to-plain", Detail: "negative integer", Err: ErrMalformedEncoding}
	}
	return r, s, nil
}

// parseUnsignedDSASignature reads SEQUENCE { INTEGER r, INTEGER s } taking
// the content octets of each INTEGER as an unsigned big-endian value.
func parseUnsignedDSASignature(derSignature []byte) (r, s *big.Int, err error) {
	input := cryptobyte.String(derSignature)
	var inner, rBytes, sBytes cryptobyte.String

	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, nil, &SignatureError{Op: "der-to-plain", Detail: "expected a single SEQUENCE", Err: ErrMalformedEncoding}
	}
	if !inner.ReadASN1(&rBytes, cbasn1.INTEGER) || !inner.ReadASN1(&sBytes, cbasn1.INTEGER) || !inner.Empty() {
		return nil, nil, &SignatureError{Op: "der-to-plain", Detail: "expected two INTEGERs", Err: ErrMalformedEncoding}
	}
	if len(rBytes) == 0 || len(sBytes) == 0 {
		return nil, nil, &SignatureError{Op: "der-to-plain", Detail: "empty INTEGER", Err: ErrMalformedEncoding}
	}
	return new(big.Int).SetBytes(rBytes), new(big.Int).SetBytes(sBytes), nil
}
