package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
)

// pssTrailer is the trailer field of an EMSA-PSS encoded block (trailerField 1).
const pssTrailer = 0xBC

// checkPSSParams enforces the rules shared by encoding and decoding.
// With a SHAKE content digest the XOF itself generates the mask, so the MGF
// digest must be the same algorithm and the salt as long as the digest.
func checkPSSParams(op string, contentDigest, mgfDigest HashAlgo, saltLen int) error {
	if !contentDigest.IsValid() || !mgfDigest.IsValid() {
		return &SignatureError{Op: op, Err: ErrHashNotFound}
	}
	if contentDigest.IsXOF() {
		if mgfDigest != contentDigest {
			return newSizeError(op, ErrInvalidParameterCombination,
				"contentDigest %s != mgfDigest %s", contentDigest, mgfDigest)
		}
		if saltLen != contentDigest.Size() {
			return newSizeError(op, ErrInvalidParameterCombination,
				"saltLen must be %d for %s, got %d", contentDigest.Size(), contentDigest, saltLen)
		}
	}
	if saltLen < 0 {
		return newSizeError(op, ErrLengthMismatch, "negative salt length %d", saltLen)
	}
	return nil
}

// pssMask returns the dbMask for seed H.
func pssMask(contentDigest, mgfDigest HashAlgo, seed []byte, length int) ([]byte, error) {
	if contentDigest.IsXOF() {
		return contentDigest.Sum(seed, length)
	}
	return MGF1(seed, mgfDigest, length)
}

// pssHash computes H = Hash(0x00*8 || mHash || salt).
func pssHash(contentDigest HashAlgo, hashValue, salt []byte) []byte {
	var zeros [8]byte
	return contentDigest.Hash(zeros[:], hashValue, salt)
}

// EncodePSS builds the EMSA-PSS block (RFC 8017 section 9.1.1) for a
// precomputed digest. The salt is drawn from random, or from crypto/rand
// when random is nil. The result is ceil((modulusBits-1)/8) bytes long.
func EncodePSS(contentDigest HashAlgo, hashValue []byte, mgfDigest HashAlgo, saltLen, modulusBits int, random io.Reader) ([]byte, error) {
	if err := checkPSSParams("pss", contentDigest, mgfDigest, saltLen); err != nil {
		return nil, err
	}

	hLen := contentDigest.Size()
	if len(hashValue) != hLen {
		return nil, newSizeError("pss", ErrLengthMismatch,
			"%s digest must be %d bytes, got %d", contentDigest, hLen, len(hashValue))
	}

	if err := checkKeyBits("pss", "modulusBits", modulusBits); err != nil {
		return nil, err
	}
	emBits := modulusBits - 1
	if saltLen > MaxKeyBits/8 || emBits < 8*hLen+8*saltLen+9 {
		return nil, newSizeError("pss", ErrKeyTooSmall,
			"modulus %d bits, hash %d bytes, salt %d bytes", modulusBits, hLen, saltLen)
	}
	emLen := (emBits + 7) / 8

	if random == nil {
		random = rand.Reader
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, err
	}

	h := pssHash(contentDigest, hashValue, salt)

	// EM = maskedDB || H || 0xBC, DB = PS || 0x01 || salt
	em := make([]byte, emLen)
	db := em[:emLen-hLen-1]
	db[len(db)-saltLen-1] = 0x01
	copy(db[len(db)-saltLen:], salt)

	mask, err := pssMask(contentDigest, mgfDigest, h, len(db))
	if err != nil {
		return nil, err
	}
	subtle.XORBytes(db, db, mask)

	db[0] &= 0xFF >> (8*emLen - emBits)

	copy(em[len(db):], h)
	em[emLen-1] = pssTrailer
	return em, nil
}

// VerifyPSS opens an EMSA-PSS block produced by EncodePSS (RFC 8017 section
// 9.1.2) and checks it against hashValue. em must be ceil((modulusBits-1)/8)
// bytes long; a block carrying a leading zero byte of a full-width RSA output
// must be trimmed by the caller.
func VerifyPSS(contentDigest HashAlgo, hashValue, em []byte, mgfDigest HashAlgo, saltLen, modulusBits int) error {
	if err := checkPSSParams("pss-verify", contentDigest, mgfDigest, saltLen); err != nil {
		return err
	}

	hLen := contentDigest.Size()
	if len(hashValue) != hLen {
		return newSizeError("pss-verify", ErrLengthMismatch,
			"%s digest must be %d bytes, got %d", contentDigest, hLen, len(hashValue))
	}

	if err := checkKeyBits("pss-verify", "modulusBits", modulusBits); err != nil {
		return err
	}
	emBits := modulusBits - 1
	emLen := (emBits + 7) / 8
	if len(em) != emLen || saltLen > MaxKeyBits/8 || emBits < 8*hLen+8*saltLen+9 {
		return newSizeError("pss-verify", ErrVerification,
			"block %d bytes, expected %d", len(em), emLen)
	}
	if em[emLen-1] != pssTrailer {
		return &SignatureError{Op: "pss-verify", Detail: "bad trailer", Err: ErrVerification}
	}

	topMask := byte(0xFF >> (8*emLen - emBits))
	if em[0]&^topMask != 0 {
		return &SignatureError{Op: "pss-verify", Detail: "leftmost bits set", Err: ErrVerification}
	}

	db := make([]byte, emLen-hLen-1)
	copy(db, em[:len(db)])
	h := em[len(db) : emLen-1]

	mask, err := pssMask(contentDigest, mgfDigest, h, len(db))
	if err != nil {
		return err
	}
	subtle.XORBytes(db, db, mask)
	db[0] &= topMask

	psLen := len(db) - saltLen - 1
	ok := subtle.ConstantTimeCompare(db[:psLen], make([]byte, psLen))
	ok &= subtle.ConstantTimeByteEq(db[psLen], 0x01)

	salt := db[len(db)-saltLen:]
	ok &= subtle.ConstantTimeCompare(h, pssHash(contentDigest, hashValue, salt))
	if ok != 1 {
		return &SignatureError{Op: "pss-verify", Err: ErrVerification}
	}
	return nil
}
