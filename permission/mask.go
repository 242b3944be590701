package permission

import "errors"

// ErrInvalidWidth is returned when a mask width other than 64/128/256/512 is requested.
var ErrInvalidWidth = errors.New("invalid mask width")

// Mask is a fixed-width permission bitmask. Bits outside the width are never set
// and always read as false.
type Mask interface {
	Has(bit int) bool
	Set(bit int)
	Clear(bit int)
	Width() int
	Empty() bool
}

// Mask64 is a 64-bit permission bitmask.
type Mask64 uint64

// Mask128 is a 128-bit permission bitmask.
type Mask128 [2]uint64

// Mask256 is a 256-bit permission bitmask.
type Mask256 [4]uint64

// Mask512 is a 512-bit permission bitmask.
type Mask512 [8]uint64

// NewMask returns an empty mask of the given width.
func NewMask(width int) (Mask, error) {
	switch width {
	case 64:
		m := Mask64(0)
		return &m, nil
	case 128:
		return &Mask128{}, nil
	case 256:
		return &Mask256{}, nil
	case 512:
		return &Mask512{}, nil
	default:
		return nil, ErrInvalidWidth
	}
}

// Clone returns an independent copy of m. A nil mask clones to nil.
func Clone(m Mask) Mask {
	switch v := m.(type) {
	case *Mask64:
		if v == nil {
			return nil
		}
		c := *v
		return &c
	case *Mask128:
		if v == nil {
			return nil
		}
		c := *v
		return &c
	case *Mask256:
		if v == nil {
			return nil
		}
		c := *v
		return &c
	case *Mask512:
		if v == nil {
			return nil
		}
		c := *v
		return &c
	default:
		return nil
	}
}

func (m *Mask64) Has(bit int) bool {
	if m == nil || bit < 0 || bit >= 64 {
		return false
	}
	return (*m & (1 << bit)) != 0
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= (1 << bit)
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= (1 << bit)
}

func (m *Mask64) Width() int { return 64 }

func (m *Mask64) Empty() bool { return m == nil || *m == 0 }

func (m *Mask128) Has(bit int) bool {
	if m == nil {
		return false
	}
	return wordsHas(m[:], bit)
}

func (m *Mask128) Set(bit int)   { wordsSet(m[:], bit) }
func (m *Mask128) Clear(bit int) { wordsClear(m[:], bit) }
func (m *Mask128) Width() int    { return 128 }
func (m *Mask128) Empty() bool   { return m == nil || wordsEmpty(m[:]) }

func (m *Mask256) Has(bit int) bool {
	if m == nil {
		return false
	}
	return wordsHas(m[:], bit)
}

func (m *Mask256) Set(bit int)   { wordsSet(m[:], bit) }
func (m *Mask256) Clear(bit int) { wordsClear(m[:], bit) }
func (m *Mask256) Width() int    { return 256 }
func (m *Mask256) Empty() bool   { return m == nil || wordsEmpty(m[:]) }

func (m *Mask512) Has(bit int) bool {
	if m == nil {
		return false
	}
	return wordsHas(m[:], bit)
}

func (m *Mask512) Set(bit int)   { wordsSet(m[:], bit) }
func (m *Mask512) Clear(bit int) { wordsClear(m[:], bit) }
func (m *Mask512) Width() int    { return 512 }
func (m *Mask512) Empty() bool   { return m == nil || wordsEmpty(m[:]) }

func wordsHas(words []uint64, bit int) bool {
	if bit < 0 || bit >= len(words)*64 {
		return false
	}
	return (words[bit/64] & (1 << (bit % 64))) != 0
}

func wordsSet(words []uint64, bit int) {
	if bit < 0 || bit >= len(words)*64 {
		return
	}
	words[bit/64] |= 1 << (bit % 64)
}

func wordsClear(words []uint64, bit int) {
	if bit < 0 || bit >= len(words)*64 {
		return
	}
	words[bit/64] &^= 1 << (bit % 64)
}

func wordsEmpty(words []uint64) bool {
	for _, w := range words {
		if w != 0 {
			return false
		}
	}
	return true
}
