package aes128

import (
	"fmt"

	"github.com/lukechampine/fastxor"
)

// State is the 4x4 cipher state in column-major order: the byte at row r,
// column c lives at index 4*c+r, matching the order of the serialized block.
type State [BlockSize]byte

// LoadBlock copies a 16-byte block into a new State.
func LoadBlock(block []byte) (State, error) {
	var s State
	if len(block) != BlockSize {
		return s, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidBlockLength, BlockSize, len(block))
	}
	copy(s[:], block)
	return s, nil
}

// Bytes serializes the state back to a block.
func (s *State) Bytes() [BlockSize]byte {
	return *s
}

// At returns the byte at row r, column c.
func (s *State) At(r, c int) byte {
	return s[4*c+r]
}

// Set stores b at row r, column c.
func (s *State) Set(r, c int, b byte) {
	s[4*c+r] = b
}

// Column returns column c as a word, row 0 first.
func (s *State) Column(c int) Word {
	return Word{s[4*c], s[4*c+1], s[4*c+2], s[4*c+3]}
}

// SetColumn replaces column c with w.
func (s *State) SetColumn(c int, w Word) {
	copy(s[4*c:4*c+4], w[:])
}

// SubBytes substitutes every byte of the state through the S-box.
func (s *State) SubBytes() {
	for i := range s {
		s[i] = sbox[s[i]]
	}
}

// ShiftRows rotates row r left by r positions.
func (s *State) ShiftRows() {
	for r := 1; r < 4; r++ {
		var row [4]byte
		for c := 0; c < 4; c++ {
			row[c] = s.At(r, (c+r)%4)
		}
		for c := 0; c < 4; c++ {
			s.Set(r, c, row[c])
		}
	}
}

// MixColumns multiplies each column by the fixed MDS matrix over GF(2^8).
func (s *State) MixColumns() {
	for c := 0; c < 4; c++ {
		s.SetColumn(c, mixColumn(s.Column(c)))
	}
}

func mixColumn(col Word) Word {
	a0, a1, a2, a3 := col[0], col[1], col[2], col[3]
	return Word{
		GFMultiply(a0, 0x02) ^ GFMultiply(a1, 0x03) ^ a2 ^ a3,
		a0 ^ GFMultiply(a1, 0x02) ^ GFMultiply(a2, 0x03) ^ a3,
		a0 ^ a1 ^ GFMultiply(a2, 0x02) ^ GFMultiply(a3, 0x03),
		GFMultiply(a0, 0x03) ^ a1 ^ a2 ^ GFMultiply(a3, 0x02),
	}
}

// AddRoundKey XORs column c of the state with word c of the round key.
func (s *State) AddRoundKey(rk [4]Word) {
	k := roundKeyBytes(rk)
	fastxor.Bytes(s[:], s[:], k[:])
}
