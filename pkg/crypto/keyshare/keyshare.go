// Package keyshare splits a 128-bit cipher key into Shamir shares.
package keyshare

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Davincible/aescore/pkg/crypto/aes128"
	"github.com/Davincible/aescore/pkg/secure"
	"github.com/hashicorp/vault/shamir"
)

// ShareSize is the encoded length of one share: the key bytes followed by
// the x coordinate.
const ShareSize = aes128.KeySize + 1

type Share struct {
	Index byte
	Data  []byte
}

// Hex returns the share in the form accepted by ParseShare.
func (s Share) Hex() string {
	return hex.EncodeToString(s.Data)
}

type Config struct {
	Parts     int
	Threshold int
}

func (c *Config) Validate() error {
	if c.Parts < 2 {
		return fmt.Errorf("parts must be at least 2, got %d", c.Parts)
	}
	if c.Threshold < 2 {
		return fmt.Errorf("threshold must be at least 2, got %d", c.Threshold)
	}
	if c.Threshold > c.Parts {
		return fmt.Errorf("threshold (%d) cannot be greater than parts (%d)", c.Threshold, c.Parts)
	}
	if c.Parts > 255 {
		return fmt.Errorf("parts cannot exceed 255, got %d", c.Parts)
	}
	return nil
}

// Split divides key into config.Parts shares, any config.Threshold of which
// recover it.
func Split(key aes128.Key, config Config) ([]Share, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	secret := key[:]
	shares, err := shamir.Split(secret, config.Parts, config.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split key: %w", err)
	}

	result := make([]Share, len(shares))
	for i, share := range shares {
		result[i] = Share{
			Index: share[len(share)-1],
			Data:  share,
		}
	}

	return result, nil
}

// Combine recovers the key from shares. With fewer shares than the
// threshold it returns a wrong key without error; compare fingerprints to
// detect that.
func Combine(shares []Share) (aes128.Key, error) {
	if len(shares) < 2 {
		return aes128.Key{}, fmt.Errorf("at least 2 shares are required for reconstruction")
	}

	shareBytes := make([][]byte, len(shares))
	for i, share := range shares {
		if err := VerifyShare(share); err != nil {
			return aes128.Key{}, fmt.Errorf("share %d: %w", i+1, err)
		}
		shareBytes[i] = share.Data
	}

	secret, err := shamir.Combine(shareBytes)
	if err != nil {
		return aes128.Key{}, fmt.Errorf("failed to combine shares: %w", err)
	}
	defer secure.Zero(secret)

	return aes128.NewKey(secret)
}

// ParseShare decodes a hex-encoded share.
func ParseShare(s string) (Share, error) {
	data, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Share{}, fmt.Errorf("failed to decode share: %w", err)
	}

	share := Share{Data: data}
	if len(data) > 0 {
		share.Index = data[len(data)-1]
	}
	if err := VerifyShare(share); err != nil {
		return Share{}, err
	}
	return share, nil
}

func VerifyShare(share Share) error {
	if len(share.Data) == 0 {
		return fmt.Errorf("share has empty data")
	}
	if len(share.Data) != ShareSize {
		return fmt.Errorf("invalid share length: expected %d, got %d", ShareSize, len(share.Data))
	}
	if share.Index == 0 {
		return fmt.Errorf("share index cannot be 0")
	}
	if last := share.Data[len(share.Data)-1]; share.Index != last {
		return fmt.Errorf("share index %d does not match encoded index %d", share.Index, last)
	}
	return nil
}
