package permission

import (
	"encoding/binary"
	"errors"
)

// EncodeMask serializes a mask as big-endian 64-bit words (8, 16, 32, or 64 bytes).
func EncodeMask(mask Mask) ([]byte, error) {
	var words []uint64

	switch m := mask.(type) {
	case *Mask64:
		if m == nil {
			return nil, errors.New("nil mask")
		}
		words = []uint64{uint64(*m)}
	case *Mask128:
		if m == nil {
			return nil, errors.New("nil mask")
		}
		words = m[:]
	case *Mask256:
		if m == nil {
			return nil, errors.New("nil mask")
		}
		words = m[:]
	case *Mask512:
		if m == nil {
			return nil, errors.New("nil mask")
		}
		words = m[:]
	default:
		return nil, errors.New("invalid mask type")
	}

	out := make([]byte, len(words)*8)
	for i, w := range words {
		binary.BigEndian.PutUint64(out[i*8:], w)
	}
	return out, nil
}

// DecodeMask is the inverse of [EncodeMask]. The width is inferred from the length.
func DecodeMask(data []byte) (Mask, error) {
	mask, err := NewMask(len(data) * 8)
	if err != nil {
		return nil, errors.New("invalid mask size")
	}

	switch m := mask.(type) {
	case *Mask64:
		*m = Mask64(binary.BigEndian.Uint64(data))
	case *Mask128:
		readWords(m[:], data)
	case *Mask256:
		readWords(m[:], data)
	case *Mask512:
		readWords(m[:], data)
	}
	return mask, nil
}

func readWords(dst []uint64, data []byte) {
	for i := range dst {
		dst[i] = binary.BigEndian.Uint64(data[i*8 : i*8+8])
	}
}
