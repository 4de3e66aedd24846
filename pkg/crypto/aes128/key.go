// Package aes128 implements the AES-128 block cipher (FIPS-197) for a single
// 16-byte block: key expansion and the forward cipher only.
package aes128

import (
	"encoding/binary"
	"fmt"
)

const (
	// BlockSize is the AES block size in bytes.
	BlockSize = 16
	// KeySize is the AES-128 key size in bytes.
	KeySize = 16
	// Rounds is the number of cipher rounds for a 128-bit key.
	Rounds = 10
	// ScheduleWords is the number of words produced by key expansion.
	ScheduleWords = 4 * (Rounds + 1)

	wordsPerKey = KeySize / 4
)

// Word is four bytes treated as a unit by the key schedule and by
// AddRoundKey. Byte 0 is the most significant byte of its uint32 view.
type Word [4]byte

// WordFromUint32 returns the big-endian byte view of v.
func WordFromUint32(v uint32) Word {
	var w Word
	binary.BigEndian.PutUint32(w[:], v)
	return w
}

// Uint32 returns the big-endian integer view of w.
func (w Word) Uint32() uint32 {
	return binary.BigEndian.Uint32(w[:])
}

// RotWord rotates the bytes of w left by one position.
func (w Word) RotWord() Word {
	return Word{w[1], w[2], w[3], w[0]}
}

// SubWord applies the S-box to each byte of w.
func (w Word) SubWord() Word {
	return Word{sbox[w[0]], sbox[w[1]], sbox[w[2]], sbox[w[3]]}
}

// Xor returns w XOR v.
func (w Word) Xor(v Word) Word {
	return Word{w[0] ^ v[0], w[1] ^ v[1], w[2] ^ v[2], w[3] ^ v[3]}
}

func (w Word) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x", w[0], w[1], w[2], w[3])
}

// Key is a 128-bit cipher key.
type Key [KeySize]byte

// NewKey copies b into a Key.
func NewKey(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Words returns the key as four words in order.
func (k Key) Words() [wordsPerKey]Word {
	var w [wordsPerKey]Word
	for i := range w {
		copy(w[i][:], k[4*i:4*i+4])
	}
	return w
}
