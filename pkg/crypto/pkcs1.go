package crypto

// EncodePKCS1v15 builds the EMSA-PKCS1-v1_5 block for a precomputed digest:
//
//	0x00 || 0x01 || 0xFF... || 0x00 || DigestInfo prefix || hashValue
//
// The block is ceil(modulusBits/8) bytes long.
func (r *Registry) EncodePKCS1v15(hashValue []byte, h HashAlgo, modulusBits int) ([]byte, error) {
	if !h.IsValid() {
		return nil, &SignatureError{Op: "pkcs1", Detail: h.String(), Err: ErrHashNotFound}
	}
	hLen := h.Size()
	if len(hashValue) != hLen {
		return nil, newSizeError("pkcs1", ErrLengthMismatch,
			"%s digest must be %d bytes, got %d", h, hLen, len(hashValue))
	}

	prefix, err := r.PrefixFor(h)
	if err != nil {
		return nil, err
	}

	digestInfo := make([]byte, 0, len(prefix)+hLen)
	digestInfo = append(digestInfo, prefix...)
	digestInfo = append(digestInfo, hashValue...)
	return EncodePKCS1v15DigestInfo(digestInfo, modulusBits)
}

// EncodePKCS1v15DigestInfo builds the EMSA-PKCS1-v1_5 block around an
// already assembled DER DigestInfo.
func EncodePKCS1v15DigestInfo(digestInfo []byte, modulusBits int) ([]byte, error) {
	if err := checkKeyBits("pkcs1", "modulusBits", modulusBits); err != nil {
		return nil, err
	}
	blockSize := (modulusBits + 7) / 8
	if modulusBits < 0 || len(digestInfo)+3 > blockSize {
		return nil, newSizeError("pkcs1", ErrDataTooLong,
			"maximal %d allowed, got %d", max(blockSize-3, 0), len(digestInfo))
	}

	block := make([]byte, blockSize)
	block[0] = 0x00
	// block type 1
	block[1] = 0x01

	sep := blockSize - len(digestInfo) - 1
	for i := 2; i < sep; i++ {
		block[i] = 0xFF
	}
	// end of padding
	block[sep] = 0x00
	copy(block[sep+1:], digestInfo)
	return block, nil
}
