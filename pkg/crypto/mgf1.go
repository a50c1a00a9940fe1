package crypto

import (
	"encoding/binary"
)

// MGF1 returns length bytes of mask generated from seed as described in
// RFC 8017 appendix B.2.1.
func MGF1(seed []byte, h HashAlgo, length int) ([]byte, error) {
	if length < 0 {
		return nil, newSizeError("mgf1", ErrLengthMismatch, "negative mask length %d", length)
	}
	if !h.IsValid() {
		return nil, &SignatureError{Op: "mgf1", Err: ErrHashNotFound}
	}

	mask := make([]byte, 0, length+h.Size())
	var counter [4]byte
	d := h.New()
	for c := uint32(0); len(mask) < length; c++ {
		binary.BigEndian.PutUint32(counter[:], c)
		d.Reset()
		d.Write(seed)
		d.Write(counter[:])
		mask = d.Sum(mask)
	}
	return mask[:length], nil
}
