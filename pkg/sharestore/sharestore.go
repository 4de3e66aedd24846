// Package sharestore keeps sets of key shares on disk, optionally encrypted
package sharestore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Davincible/aescore/pkg/crypto/keyshare"
	"github.com/Davincible/aescore/pkg/secure"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltSize  = 32
	idSize    = 16
	maxNameLn = 50

	metaFileName    = "store.meta"
	metaVersion     = 1
	verifierMessage = "aescore share store"
)

var (
	// ErrNotFound is returned when no share set matches an ID or name
	ErrNotFound = errors.New("share set not found")
	// ErrPassphraseRequired is returned when an encrypted store is opened without a passphrase
	ErrPassphraseRequired = errors.New("share store is encrypted: a password is required")
	// ErrNotEncrypted is returned when a plaintext store is opened with a passphrase
	ErrNotEncrypted = errors.New("share store is not encrypted: omit the password")
	// ErrWrongPassphrase is returned when the passphrase does not open the store
	ErrWrongPassphrase = errors.New("wrong share store password")
)

// ShareSet is every share produced by one split of a key
type ShareSet struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Created        time.Time   `json:"created"`
	Modified       time.Time   `json:"modified"`
	Threshold      int         `json:"threshold"`
	TotalShares    int         `json:"total_shares"`
	Fingerprint    string      `json:"fingerprint"`
	Tags           []string    `json:"tags"`
	Shares         []ShareInfo `json:"shares"`
	ChecksumSHA256 []byte      `json:"checksum_sha256"`
}

// ShareInfo holds one share and what is known about it
type ShareInfo struct {
	Index        int         `json:"index"`
	Location     string      `json:"location"`
	Status       ShareStatus `json:"status"`
	LastVerified *time.Time  `json:"last_verified,omitempty"`
	Data         string      `json:"data,omitempty"` // Hex share, empty once distributed
}

// ShareStatus represents the status of a share
type ShareStatus string

const (
	ShareStatusAvailable   ShareStatus = "available"
	ShareStatusMissing     ShareStatus = "missing"
	ShareStatusCorrupted   ShareStatus = "corrupted"
	ShareStatusUnverified  ShareStatus = "unverified"
	ShareStatusDistributed ShareStatus = "distributed"
)

// KeyDerivationParams are the Argon2id parameters for store encryption
type KeyDerivationParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

// storeMeta fixes the mode of a store directory when it is first opened.
// Encrypted stores keep their Argon2id parameters and a sealed verifier so a
// wrong passphrase is rejected before any share set is read or written.
type storeMeta struct {
	Version   int                  `json:"version"`
	Encrypted bool                 `json:"encrypted"`
	KDF       *KeyDerivationParams `json:"kdf,omitempty"`
	Verifier  []byte               `json:"verifier,omitempty"`
}

// DefaultKeyDerivationParams returns the Argon2id parameters used by NewShareStore
func DefaultKeyDerivationParams() KeyDerivationParams {
	return KeyDerivationParams{
		Time:    3,
		Memory:  64 * 1024, // 64MB
		Threads: 4,
	}
}

// ShareStore manages the share sets in one directory
type ShareStore struct {
	storePath  string
	shareSets  map[string]*ShareSet
	passphrase []byte
	params     KeyDerivationParams
}

// NewShareStore opens the store at storePath, creating the directory if
// needed. With a non-empty passphrase every file is sealed with
// ChaCha20-Poly1305 under an Argon2id key. The first open decides whether the
// store is encrypted; later opens in the other mode fail with
// ErrPassphraseRequired or ErrNotEncrypted.
func NewShareStore(storePath, passphrase string) (*ShareStore, error) {
	return NewShareStoreWithParams(storePath, passphrase, DefaultKeyDerivationParams())
}

// NewShareStoreWithParams is NewShareStore with explicit Argon2id parameters
func NewShareStoreWithParams(storePath, passphrase string, params KeyDerivationParams) (*ShareStore, error) {
	store := &ShareStore{
		storePath: storePath,
		shareSets: make(map[string]*ShareSet),
		params:    params,
	}
	if passphrase != "" {
		store.passphrase = []byte(passphrase)
	}

	if err := os.MkdirAll(storePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	meta, err := store.readMeta()
	switch {
	case err == nil:
		if err := store.checkMeta(meta); err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read store metadata: %w", err)
	}

	if err := store.loadShareSets(); err != nil {
		return nil, fmt.Errorf("failed to load share sets: %w", err)
	}

	if meta == nil {
		if err := store.writeMeta(); err != nil {
			return nil, fmt.Errorf("failed to write store metadata: %w", err)
		}
	}

	return store, nil
}

// Encrypted reports whether the store seals its files
func (ss *ShareStore) Encrypted() bool {
	return ss.encrypted()
}

// Path returns the store directory
func (ss *ShareStore) Path() string {
	return ss.storePath
}

func (ss *ShareStore) metaPath() string {
	return filepath.Join(ss.storePath, metaFileName)
}

func (ss *ShareStore) readMeta() (*storeMeta, error) {
	data, err := os.ReadFile(ss.metaPath())
	if err != nil {
		return nil, err
	}

	var meta storeMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", metaFileName, err)
	}
	if meta.Version != metaVersion {
		return nil, fmt.Errorf("unsupported store version %d", meta.Version)
	}
	return &meta, nil
}

func (ss *ShareStore) checkMeta(meta *storeMeta) error {
	switch {
	case meta.Encrypted && !ss.encrypted():
		return ErrPassphraseRequired
	case !meta.Encrypted && ss.encrypted():
		return ErrNotEncrypted
	case !meta.Encrypted:
		return nil
	}

	if meta.KDF != nil {
		ss.params = *meta.KDF
	}
	plain, err := ss.decrypt(meta.Verifier)
	if err != nil || !secure.ConstantTimeCompare(plain, []byte(verifierMessage)) {
		return ErrWrongPassphrase
	}
	return nil
}

func (ss *ShareStore) writeMeta() error {
	meta := storeMeta{Version: metaVersion, Encrypted: ss.encrypted()}
	if meta.Encrypted {
		params := ss.params
		meta.KDF = &params

		verifier, err := ss.encrypt([]byte(verifierMessage))
		if err != nil {
			return err
		}
		meta.Verifier = verifier
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ss.metaPath(), data, 0600)
}

// NewShareSet builds a share set from the output of keyshare.Split
func NewShareSet(name string, threshold int, fingerprint string, shares []keyshare.Share) *ShareSet {
	set := &ShareSet{
		Name:        name,
		Threshold:   threshold,
		TotalShares: len(shares),
		Fingerprint: fingerprint,
		Shares:      make([]ShareInfo, len(shares)),
	}
	for i, share := range shares {
		set.Shares[i] = ShareInfo{
			Index:  int(share.Index),
			Status: ShareStatusUnverified,
			Data:   share.Hex(),
		}
	}
	return set
}

// AddShareSet adds a new share set to the store
func (ss *ShareStore) AddShareSet(shareSet *ShareSet) error {
	if shareSet.Name == "" {
		return fmt.Errorf("share set name cannot be empty")
	}
	if existing, err := ss.FindByName(shareSet.Name); err == nil && existing.ID != shareSet.ID {
		return fmt.Errorf("share set '%s' already exists", shareSet.Name)
	}

	if shareSet.ID == "" {
		id, err := generateID()
		if err != nil {
			return err
		}
		shareSet.ID = id
	}

	now := time.Now()
	if shareSet.Created.IsZero() {
		shareSet.Created = now
	}
	shareSet.Modified = now

	if err := calculateChecksum(shareSet); err != nil {
		return fmt.Errorf("failed to calculate checksum: %w", err)
	}

	ss.shareSets[shareSet.ID] = shareSet
	return ss.saveShareSet(shareSet)
}

// GetShareSet retrieves a share set by ID
func (ss *ShareStore) GetShareSet(id string) (*ShareSet, error) {
	shareSet, exists := ss.shareSets[id]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}

	if err := verifyChecksum(shareSet); err != nil {
		return nil, fmt.Errorf("checksum verification failed: %w", err)
	}

	return shareSet, nil
}

// FindByName retrieves a share set by case-insensitive name
func (ss *ShareStore) FindByName(name string) (*ShareSet, error) {
	for id, shareSet := range ss.shareSets {
		if strings.EqualFold(shareSet.Name, name) {
			return ss.GetShareSet(id)
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrNotFound, name)
}

// ListShareSets returns all share sets, optionally filtered by tags
func (ss *ShareStore) ListShareSets(tags []string) []*ShareSet {
	var result []*ShareSet

	for _, shareSet := range ss.shareSets {
		if len(tags) == 0 || hasAllTags(shareSet, tags) {
			result = append(result, shareSet)
		}
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].Created.After(result[j].Created)
	})

	return result
}

// UpdateShareStatus records where a share went. Distributed shares drop
// their data from the store.
func (ss *ShareStore) UpdateShareStatus(shareSetID string, shareIndex int, status ShareStatus, location string) error {
	shareSet, err := ss.GetShareSet(shareSetID)
	if err != nil {
		return err
	}

	for i := range shareSet.Shares {
		if shareSet.Shares[i].Index != shareIndex {
			continue
		}
		shareSet.Shares[i].Status = status
		if location != "" {
			shareSet.Shares[i].Location = location
		}
		if status == ShareStatusDistributed {
			shareSet.Shares[i].Data = ""
		}
		return ss.touch(shareSet)
	}

	return fmt.Errorf("share with index %d not found", shareIndex)
}

// VerificationReport contains the results of share verification
type VerificationReport struct {
	ShareSetID    string                    `json:"share_set_id"`
	Timestamp     time.Time                 `json:"timestamp"`
	TotalShares   int                       `json:"total_shares"`
	ValidShares   int                       `json:"valid_shares"`
	IsRecoverable bool                      `json:"is_recoverable"`
	Results       []ShareVerificationResult `json:"results"`
}

// ShareVerificationResult contains verification results for a single share
type ShareVerificationResult struct {
	ShareIndex int         `json:"share_index"`
	Status     ShareStatus `json:"status"`
	IsValid    bool        `json:"is_valid"`
	Error      string      `json:"error,omitempty"`
}

// VerifyShares checks every stored share and records the outcome
func (ss *ShareStore) VerifyShares(shareSetID string) (*VerificationReport, error) {
	shareSet, err := ss.GetShareSet(shareSetID)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		ShareSetID:  shareSetID,
		Timestamp:   time.Now(),
		TotalShares: len(shareSet.Shares),
		Results:     make([]ShareVerificationResult, 0, len(shareSet.Shares)),
	}

	for i, info := range shareSet.Shares {
		result := ShareVerificationResult{ShareIndex: info.Index}

		switch {
		case info.Status == ShareStatusDistributed:
			result.Status = ShareStatusDistributed
		case info.Data == "":
			result.Status = ShareStatusMissing
			result.Error = "share data not available"
		default:
			share, err := keyshare.ParseShare(info.Data)
			if err == nil && int(share.Index) != info.Index {
				err = fmt.Errorf("share index %d does not match record %d", share.Index, info.Index)
			}
			if err != nil {
				result.Status = ShareStatusCorrupted
				result.Error = err.Error()
			} else {
				result.Status = ShareStatusAvailable
				result.IsValid = true
				report.ValidShares++
			}
		}

		now := report.Timestamp
		shareSet.Shares[i].LastVerified = &now
		shareSet.Shares[i].Status = result.Status
		report.Results = append(report.Results, result)
	}

	report.IsRecoverable = report.ValidShares >= shareSet.Threshold

	if err := ss.touch(shareSet); err != nil {
		return nil, err
	}

	return report, nil
}

// GetRecoveryShares returns threshold many stored shares for keyshare.Combine
func (ss *ShareStore) GetRecoveryShares(shareSetID string) ([]keyshare.Share, error) {
	shareSet, err := ss.GetShareSet(shareSetID)
	if err != nil {
		return nil, err
	}

	var available []keyshare.Share
	for _, info := range shareSet.Shares {
		if info.Data == "" || info.Status == ShareStatusCorrupted {
			continue
		}
		share, err := keyshare.ParseShare(info.Data)
		if err != nil {
			continue // Skip corrupted shares
		}
		available = append(available, share)
	}

	if len(available) < shareSet.Threshold {
		return nil, fmt.Errorf("insufficient shares: need %d, have %d",
			shareSet.Threshold, len(available))
	}

	return available[:shareSet.Threshold], nil
}

// DeleteShareSet removes a share set, overwriting its file first
func (ss *ShareStore) DeleteShareSet(id string) error {
	shareSet, exists := ss.shareSets[id]
	if !exists {
		return fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}

	filename := ss.getShareSetFilename(shareSet)
	if info, err := os.Stat(filename); err == nil {
		if noise, err := secure.SecureRandom(int(info.Size())); err == nil {
			_ = os.WriteFile(filename, noise, 0600)
		}
	}
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	delete(ss.shareSets, id)
	return nil
}

func (ss *ShareStore) touch(shareSet *ShareSet) error {
	shareSet.Modified = time.Now()
	if err := calculateChecksum(shareSet); err != nil {
		return err
	}
	return ss.saveShareSet(shareSet)
}

func (ss *ShareStore) encrypted() bool {
	return len(ss.passphrase) > 0
}

func (ss *ShareStore) loadShareSets() error {
	entries, err := os.ReadDir(ss.storePath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ss.loadShareSetFromFile(filepath.Join(ss.storePath, entry.Name())); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}

	return nil
}

func (ss *ShareStore) loadShareSetFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	if ss.encrypted() {
		data, err = ss.decrypt(data)
		if err != nil {
			return err
		}
	}

	var shareSet ShareSet
	if err := json.Unmarshal(data, &shareSet); err != nil {
		return fmt.Errorf("failed to parse share set (encrypted store?): %w", err)
	}

	if err := verifyChecksum(&shareSet); err != nil {
		return err
	}

	ss.shareSets[shareSet.ID] = &shareSet
	return nil
}

func (ss *ShareStore) saveShareSet(shareSet *ShareSet) error {
	data, err := json.MarshalIndent(shareSet, "", "  ")
	if err != nil {
		return err
	}

	if ss.encrypted() {
		data, err = ss.encrypt(data)
		if err != nil {
			return err
		}
	}

	return os.WriteFile(ss.getShareSetFilename(shareSet), data, 0600)
}

func (ss *ShareStore) getShareSetFilename(shareSet *ShareSet) string {
	safeName := strings.ReplaceAll(shareSet.Name, " ", "_")
	safeName = strings.ReplaceAll(safeName, "/", "_")
	if len(safeName) > maxNameLn {
		safeName = safeName[:maxNameLn]
	}
	return filepath.Join(ss.storePath, fmt.Sprintf("%s_%s.json", safeName, shareSet.ID[:8]))
}

func calculateChecksum(shareSet *ShareSet) error {
	temp := *shareSet
	temp.ChecksumSHA256 = nil

	data, err := json.Marshal(temp)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(data)
	shareSet.ChecksumSHA256 = hash[:]

	return nil
}

func verifyChecksum(shareSet *ShareSet) error {
	temp := *shareSet
	if err := calculateChecksum(&temp); err != nil {
		return err
	}

	if !secure.ConstantTimeCompare(shareSet.ChecksumSHA256, temp.ChecksumSHA256) {
		return fmt.Errorf("checksum mismatch - data may be corrupted")
	}

	return nil
}

func hasAllTags(shareSet *ShareSet, tags []string) bool {
	have := make(map[string]bool)
	for _, tag := range shareSet.Tags {
		have[strings.ToLower(tag)] = true
	}

	for _, tag := range tags {
		if !have[strings.ToLower(tag)] {
			return false
		}
	}

	return true
}

func (ss *ShareStore) deriveKey(salt []byte) []byte {
	return argon2.IDKey(ss.passphrase, salt, ss.params.Time, ss.params.Memory, ss.params.Threads, chacha20poly1305.KeySize)
}

// encrypt seals data as salt || nonce || ciphertext.
func (ss *ShareStore) encrypt(data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := ss.deriveKey(salt)
	defer secure.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	result := make([]byte, 0, saltSize+len(nonce)+len(data)+aead.Overhead())
	result = append(result, salt...)
	result = append(result, nonce...)
	return aead.Seal(result, nonce, data, nil), nil
}

func (ss *ShareStore) decrypt(data []byte) ([]byte, error) {
	if len(data) < saltSize+chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("encrypted data too short")
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+chacha20poly1305.NonceSize]
	sealed := data[saltSize+chacha20poly1305.NonceSize:]

	key := ss.deriveKey(salt)
	defer secure.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong passphrase?): %w", err)
	}

	return plain, nil
}

func generateID() (string, error) {
	b := make([]byte, idSize)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}
