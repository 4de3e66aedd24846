package aes128

import "fmt"

// RoundKeySchedule is the expanded key: 11 round keys of 4 words each.
type RoundKeySchedule [ScheduleWords]Word

// Expand derives the round key schedule for key.
func Expand(key Key) RoundKeySchedule {
	var w RoundKeySchedule

	kw := key.Words()
	copy(w[:wordsPerKey], kw[:])

	for i := wordsPerKey; i < ScheduleWords; i++ {
		temp := w[i-1]
		if i%wordsPerKey == 0 {
			temp = temp.RotWord().SubWord()
			temp[0] ^= rcon[i/wordsPerKey]
		}
		w[i] = w[i-wordsPerKey].Xor(temp)
	}

	return w
}

// RoundKey returns the four words used by AddRoundKey in the given round.
func (s *RoundKeySchedule) RoundKey(round int) [4]Word {
	if round < 0 || round > Rounds {
		panic(fmt.Sprintf("aes128: round %d out of range [0, %d]", round, Rounds))
	}
	var rk [4]Word
	copy(rk[:], s[4*round:4*round+4])
	return rk
}

// Bytes returns the round key for round serialized in state order.
func (s *RoundKeySchedule) Bytes(round int) [BlockSize]byte {
	return roundKeyBytes(s.RoundKey(round))
}

func roundKeyBytes(rk [4]Word) [BlockSize]byte {
	var b [BlockSize]byte
	for c, w := range rk {
		copy(b[4*c:4*c+4], w[:])
	}
	return b
}
