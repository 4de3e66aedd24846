// Package mnemonic encodes 128-bit cipher keys as BIP-39 word lists and
// derives keys from passphrases.
package mnemonic

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Davincible/aescore/pkg/crypto/aes128"
	"github.com/Davincible/aescore/pkg/secure"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyWordCount is the number of words encoding a 128-bit key.
	KeyWordCount = 12
	// MinIterations is the lowest PBKDF2 iteration count DeriveKey accepts.
	MinIterations = 1000

	keyEntropyBits = aes128.KeySize * 8
)

type Mnemonic struct {
	words []string
}

// NewKeyMnemonic generates a fresh random key and returns its mnemonic.
func NewKeyMnemonic() (*Mnemonic, error) {
	entropy, err := bip39.NewEntropy(keyEntropyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer secure.Zero(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return &Mnemonic{
		words: strings.Fields(mnemonic),
	}, nil
}

// FromWords parses a 12-word mnemonic.
func FromWords(words string) (*Mnemonic, error) {
	fields := strings.Fields(strings.ToLower(words))
	if len(fields) != KeyWordCount {
		return nil, fmt.Errorf("key mnemonic must have %d words (got %d)", KeyWordCount, len(fields))
	}

	if !bip39.IsMnemonicValid(strings.Join(fields, " ")) {
		return nil, fmt.Errorf("invalid mnemonic phrase")
	}

	return &Mnemonic{
		words: fields,
	}, nil
}

// FromKey encodes key as a mnemonic.
func FromKey(key aes128.Key) (*Mnemonic, error) {
	mnemonic, err := bip39.NewMnemonic(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to generate mnemonic from key: %w", err)
	}

	return &Mnemonic{
		words: strings.Fields(mnemonic),
	}, nil
}

func (m *Mnemonic) Words() string {
	return strings.Join(m.words, " ")
}

func (m *Mnemonic) WordList() []string {
	result := make([]string, len(m.words))
	copy(result, m.words)
	return result
}

func (m *Mnemonic) WordCount() int {
	return len(m.words)
}

// Key decodes the mnemonic back into the key it encodes.
func (m *Mnemonic) Key() (aes128.Key, error) {
	entropy, err := bip39.EntropyFromMnemonic(m.Words())
	if err != nil {
		return aes128.Key{}, fmt.Errorf("failed to get entropy from mnemonic: %w", err)
	}
	defer secure.Zero(entropy)

	return aes128.NewKey(entropy)
}

// DeriveKey stretches a passphrase into a 128-bit key with
// PBKDF2-HMAC-SHA256.
func DeriveKey(passphrase, salt []byte, iterations int) (aes128.Key, error) {
	if len(passphrase) == 0 {
		return aes128.Key{}, fmt.Errorf("passphrase cannot be empty")
	}
	if iterations < MinIterations {
		return aes128.Key{}, fmt.Errorf("iterations must be at least %d (got %d)", MinIterations, iterations)
	}

	derived := pbkdf2.Key(passphrase, salt, iterations, aes128.KeySize, sha256.New)
	defer secure.Zero(derived)

	return aes128.NewKey(derived)
}

// Fingerprint returns the first four bytes of SHA-256(key) as hex, for
// identifying a key without revealing it.
func Fingerprint(key aes128.Key) string {
	h := sha256.Sum256(key[:])
	return hex.EncodeToString(h[:4])
}

func SecureCompareWords(a, b string) bool {
	aWords := strings.Fields(strings.TrimSpace(a))
	bWords := strings.Fields(strings.TrimSpace(b))

	if len(aWords) != len(bWords) {
		return false
	}

	match := true
	for i := range aWords {
		if aWords[i] != bWords[i] {
			match = false
		}
	}

	return match
}
