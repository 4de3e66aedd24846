package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Davincible/aescore/pkg/crypto/aes128"
	"github.com/Davincible/aescore/pkg/secure"
	"github.com/lukechampine/fastxor"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize          = 32
	NonceSize         = aes128.BlockSize
	DefaultIterations = 100000
	MaxIterations     = 10 * DefaultIterations

	keyFileVersion = 1
	kdfName        = "pbkdf2-sha256"
)

// ErrAuthentication is returned when a key file fails its integrity check,
// usually because the password is wrong.
var ErrAuthentication = errors.New("key file authentication failed")

// KeyStore keeps one cipher key in a password-protected file. The key is
// XORed with a keystream block E(kek, nonce) and the result is authenticated
// with HMAC-SHA256; both kek and the MAC key come from PBKDF2 over the
// password.
type KeyStore struct {
	filepath   string
	iterations int

	// Perm is the mode used when writing the key file.
	Perm os.FileMode
}

type keyFile struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Sealed     []byte `json:"sealed"`
	MAC        []byte `json:"mac"`
}

func NewKeyStore(filepath string, iterations int) *KeyStore {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &KeyStore{
		filepath:   filepath,
		iterations: iterations,
		Perm:       0600,
	}
}

func (s *KeyStore) Path() string {
	return s.filepath
}

func (s *KeyStore) Save(key aes128.Key, password []byte) error {
	if len(password) == 0 {
		return fmt.Errorf("password cannot be empty")
	}
	if s.iterations > MaxIterations {
		return fmt.Errorf("iterations %d exceed the maximum of %d", s.iterations, MaxIterations)
	}

	salt, err := secure.SecureRandom(SaltSize)
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce, err := secure.SecureRandom(NonceSize)
	if err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	kf := keyFile{
		Version:    keyFileVersion,
		KDF:        kdfName,
		Iterations: s.iterations,
		Salt:       salt,
		Nonce:      nonce,
	}

	kek, macKey := kf.deriveKeys(password)
	defer secure.Zero(kek)
	defer secure.Zero(macKey)

	sealed, err := xorKeystream(key[:], kek, kf.Nonce)
	if err != nil {
		return err
	}
	kf.Sealed = sealed
	kf.MAC = kf.mac(macKey)

	jsonData, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key file: %w", err)
	}

	dir := filepath.Dir(s.filepath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(s.filepath, jsonData, s.Perm); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func (s *KeyStore) Load(password []byte) (aes128.Key, error) {
	if len(password) == 0 {
		return aes128.Key{}, fmt.Errorf("password cannot be empty")
	}

	jsonData, err := os.ReadFile(s.filepath)
	if err != nil {
		return aes128.Key{}, fmt.Errorf("failed to read file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(jsonData, &kf); err != nil {
		return aes128.Key{}, fmt.Errorf("failed to unmarshal key file: %w", err)
	}

	if kf.Version != keyFileVersion || kf.KDF != kdfName {
		return aes128.Key{}, fmt.Errorf("unsupported key file (version %d, kdf %q)", kf.Version, kf.KDF)
	}
	// Checked before PBKDF2 runs, since the MAC cannot vouch for it yet
	if kf.Iterations > MaxIterations {
		return aes128.Key{}, fmt.Errorf("malformed key file: %d iterations exceed the maximum of %d", kf.Iterations, MaxIterations)
	}
	if kf.Iterations <= 0 || len(kf.Nonce) != NonceSize || len(kf.Sealed) != aes128.KeySize {
		return aes128.Key{}, fmt.Errorf("malformed key file")
	}

	kek, macKey := kf.deriveKeys(password)
	defer secure.Zero(kek)
	defer secure.Zero(macKey)

	if !hmac.Equal(kf.MAC, kf.mac(macKey)) {
		return aes128.Key{}, ErrAuthentication
	}

	raw, err := xorKeystream(kf.Sealed, kek, kf.Nonce)
	if err != nil {
		return aes128.Key{}, err
	}
	defer secure.Zero(raw)

	return aes128.NewKey(raw)
}

func (s *KeyStore) Exists() bool {
	_, err := os.Stat(s.filepath)
	return err == nil
}

// Delete overwrites the key file with random bytes before removing it.
func (s *KeyStore) Delete() error {
	if !s.Exists() {
		return nil
	}

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return fmt.Errorf("failed to read file for secure deletion: %w", err)
	}
	defer func() { _ = secure.RandomOverwrite(data) }()

	noise, err := secure.SecureRandom(len(data))
	if err != nil {
		return fmt.Errorf("failed to overwrite file: %w", err)
	}

	if err := os.WriteFile(s.filepath, noise, 0600); err != nil {
		return fmt.Errorf("failed to overwrite file: %w", err)
	}

	return os.Remove(s.filepath)
}

// deriveKeys returns the key-encryption key and the MAC key.
func (kf *keyFile) deriveKeys(password []byte) (kek, macKey []byte) {
	dk := pbkdf2.Key(password, kf.Salt, kf.Iterations, 2*aes128.KeySize, sha256.New)
	return dk[:aes128.KeySize], dk[aes128.KeySize:]
}

// xorKeystream XORs in with the single keystream block E(kek, nonce).
func xorKeystream(in, kek, nonce []byte) ([]byte, error) {
	pad, err := aes128.Encrypt(kek, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keystream: %w", err)
	}
	defer secure.Zero(pad)

	out := make([]byte, len(in))
	fastxor.Bytes(out, in, pad)
	return out, nil
}

func (kf *keyFile) mac(macKey []byte) []byte {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(kf.Version))
	binary.BigEndian.PutUint32(hdr[4:], uint32(kf.Iterations))

	h := hmac.New(sha256.New, macKey)
	h.Write(hdr[:])
	h.Write(kf.Salt)
	h.Write(kf.Nonce)
	h.Write(kf.Sealed)
	return h.Sum(nil)
}
