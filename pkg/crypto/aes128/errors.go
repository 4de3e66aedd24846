package aes128

import "errors"

var (
	// ErrInvalidKeyLength is returned when a key is not exactly KeySize bytes.
	ErrInvalidKeyLength = errors.New("aes128: invalid key length")
	// ErrInvalidBlockLength is returned when a block is not exactly BlockSize bytes.
	ErrInvalidBlockLength = errors.New("aes128: invalid block length")
	// ErrNotInitialized is returned when encrypting without a key schedule.
	ErrNotInitialized = errors.New("aes128: cipher not initialized")
)
