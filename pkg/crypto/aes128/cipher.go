package aes128

import (
	"fmt"

	"github.com/Davincible/aescore/pkg/secure"
)

// Phase identifies a point in the encryption of one block.
type Phase int

const (
	// PhaseInitialized: the block has been loaded into the state.
	PhaseInitialized Phase = iota
	// PhaseRoundKeyAdded: round key 0 has been added.
	PhaseRoundKeyAdded
	// PhaseSubstituteRound: one of the nine full rounds has completed.
	PhaseSubstituteRound
	// PhaseFinalRound: round 10, without MixColumns, has completed.
	PhaseFinalRound
	// PhaseDone: the state has been written to the output block.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseRoundKeyAdded:
		return "round-key-added"
	case PhaseSubstituteRound:
		return "substitute-round"
	case PhaseFinalRound:
		return "final-round"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Tracer observes the state after each phase of an encryption. The state is
// a copy and may be retained.
type Tracer func(phase Phase, round int, state State)

// Cipher encrypts single blocks under one key. The round key schedule is
// computed once by NewCipher and never modified, so a Cipher may be used
// from multiple goroutines. Destroy must not race with Encrypt.
type Cipher struct {
	schedule *RoundKeySchedule
}

// NewCipher expands key, which must be exactly 16 bytes.
func NewCipher(key []byte) (*Cipher, error) {
	k, err := NewKey(key)
	if err != nil {
		return nil, err
	}
	defer secure.Zero(k[:])

	ks := Expand(k)
	return &Cipher{schedule: &ks}, nil
}

// Encrypt is a one-shot helper that expands key and encrypts block.
func Encrypt(key, block []byte) ([]byte, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	defer c.Destroy()

	return c.Encrypt(block)
}

// BlockSize returns the cipher block size.
func (c *Cipher) BlockSize() int { return BlockSize }

// Encrypt encrypts one 16-byte block and returns the ciphertext.
func (c *Cipher) Encrypt(block []byte) ([]byte, error) {
	return c.EncryptTrace(block, nil)
}

// EncryptBlock encrypts src into dst. dst and src may overlap entirely.
func (c *Cipher) EncryptBlock(dst, src []byte) error {
	if c == nil || c.schedule == nil {
		return ErrNotInitialized
	}
	if len(dst) < BlockSize {
		return fmt.Errorf("%w: output buffer holds %d bytes", ErrInvalidBlockLength, len(dst))
	}

	s, err := LoadBlock(src)
	if err != nil {
		return err
	}

	c.run(&s, nil)
	out := s.Bytes()
	copy(dst, out[:])
	return nil
}

// EncryptTrace encrypts block, reporting every phase to fn when fn is non-nil.
func (c *Cipher) EncryptTrace(block []byte, fn Tracer) ([]byte, error) {
	if c == nil || c.schedule == nil {
		return nil, ErrNotInitialized
	}

	s, err := LoadBlock(block)
	if err != nil {
		return nil, err
	}

	c.run(&s, fn)
	out := s.Bytes()
	if fn != nil {
		fn(PhaseDone, Rounds, s)
	}
	return out[:], nil
}

// Schedule returns a copy of the expanded key.
func (c *Cipher) Schedule() (RoundKeySchedule, error) {
	if c == nil || c.schedule == nil {
		return RoundKeySchedule{}, ErrNotInitialized
	}
	return *c.schedule, nil
}

// Destroy wipes the key schedule. Later calls fail with ErrNotInitialized.
func (c *Cipher) Destroy() {
	if c == nil || c.schedule == nil {
		return
	}
	for i := range c.schedule {
		secure.Zero(c.schedule[i][:])
	}
	c.schedule = nil
}

func (c *Cipher) run(s *State, fn Tracer) {
	ks := c.schedule
	emit := func(p Phase, round int) {
		if fn != nil {
			fn(p, round, *s)
		}
	}

	emit(PhaseInitialized, 0)
	s.AddRoundKey(ks.RoundKey(0))
	emit(PhaseRoundKeyAdded, 0)

	for round := 1; round < Rounds; round++ {
		s.SubBytes()
		s.ShiftRows()
		s.MixColumns()
		s.AddRoundKey(ks.RoundKey(round))
		emit(PhaseSubstituteRound, round)
	}

	// No MixColumns in the last round
	s.SubBytes()
	s.ShiftRows()
	s.AddRoundKey(ks.RoundKey(Rounds))
	emit(PhaseFinalRound, Rounds)
}
