// Package config provides configuration management for the aescore CLI tool
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Davincible/aescore/pkg/storage"
)

// Config represents the main configuration structure
type Config struct {
	Version  string          `json:"version"`
	Defaults DefaultSettings `json:"defaults"`
	KDF      KDFConfig       `json:"kdf"`
	Security SecurityConfig  `json:"security"`
	UI       UIConfig        `json:"ui"`
	Storage  StorageConfig   `json:"storage"`
}

// DefaultSettings contains default values for common operations
type DefaultSettings struct {
	OutputFormat string `json:"output_format"` // hex or base64
	Trace        bool   `json:"trace"`         // Print round states on encrypt
}

// KDFConfig controls passphrase-based key derivation
type KDFConfig struct {
	Iterations int    `json:"iterations"` // PBKDF2 iterations for --passphrase
	Salt       string `json:"salt"`       // Salt for --passphrase
}

// SecurityConfig contains security-related settings
type SecurityConfig struct {
	MinPassphraseLength int  `json:"min_passphrase_length"` // Minimum passphrase length
	WipeMemory          bool `json:"wipe_memory"`           // Destroy key schedules after use
}

// UIConfig contains user interface settings
type UIConfig struct {
	UseColor  bool   `json:"use_color"` // Enable colored output
	Verbosity string `json:"verbosity"` // quiet, normal, verbose
}

// StorageConfig contains key file settings
type StorageConfig struct {
	DefaultKeystore    string `json:"default_keystore"`    // Key file used by keygen --save
	FilePermissions    string `json:"file_permissions"`    // Octal mode for new key files
	KeystoreIterations int    `json:"keystore_iterations"` // PBKDF2 iterations protecting key files
	ShareStore         string `json:"share_store"`         // Directory used by split --store
}

// ConfigManager manages configuration loading and saving
type ConfigManager struct {
	config     *Config
	configPath string
}

// NewConfigManager loads the configuration, writing the defaults on first use
func NewConfigManager() (*ConfigManager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	return NewConfigManagerAt(configPath)
}

// NewConfigManagerAt is NewConfigManager with an explicit file path
func NewConfigManagerAt(configPath string) (*ConfigManager, error) {
	cm := &ConfigManager{configPath: configPath}

	if err := cm.LoadConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// Create default config if doesn't exist
		cm.config = DefaultConfig()
		if err := cm.SaveConfig(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	return cm, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Defaults: DefaultSettings{
			OutputFormat: "hex",
			Trace:        false,
		},
		KDF: KDFConfig{
			Iterations: 100000,
			Salt:       "aescore-passphrase-v1",
		},
		Security: SecurityConfig{
			MinPassphraseLength: 8,
			WipeMemory:          true,
		},
		UI: UIConfig{
			UseColor:  true,
			Verbosity: "normal",
		},
		Storage: StorageConfig{
			DefaultKeystore:    "~/.aescore/key.json",
			FilePermissions:    "0600",
			KeystoreIterations: 100000,
			ShareStore:         "~/.aescore/shares",
		},
	}
}

// LoadConfig loads the configuration from disk
func (cm *ConfigManager) LoadConfig() error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return err
	}

	// Start from defaults so older files pick up new fields
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cm.configPath, err)
	}

	cm.config = config
	return nil
}

// SaveConfig saves the configuration to disk
func (cm *ConfigManager) SaveConfig() error {
	configDir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// SetConfig updates the configuration
func (cm *ConfigManager) SetConfig(config *Config) {
	cm.config = config
}

// Path returns the configuration file path
func (cm *ConfigManager) Path() string {
	return cm.configPath
}

// Validate checks the configuration for values the CLI cannot use
func (c *Config) Validate() error {
	switch c.Defaults.OutputFormat {
	case "hex", "base64":
	default:
		return fmt.Errorf("output_format must be hex or base64, got %q", c.Defaults.OutputFormat)
	}

	if c.KDF.Iterations < 1000 {
		return fmt.Errorf("kdf iterations must be at least 1000, got %d", c.KDF.Iterations)
	}

	if c.Storage.KeystoreIterations < 1000 || c.Storage.KeystoreIterations > storage.MaxIterations {
		return fmt.Errorf("keystore_iterations must be between 1000 and %d, got %d", storage.MaxIterations, c.Storage.KeystoreIterations)
	}

	if _, err := c.Storage.Perm(); err != nil {
		return err
	}

	if c.Security.MinPassphraseLength < 0 {
		return fmt.Errorf("min_passphrase_length cannot be negative")
	}

	return nil
}

// Perm parses FilePermissions as an octal file mode
func (s StorageConfig) Perm() (os.FileMode, error) {
	mode, err := strconv.ParseUint(s.FilePermissions, 8, 32)
	if err != nil || mode > 0777 {
		return 0, fmt.Errorf("file_permissions must be an octal mode like 0600, got %q", s.FilePermissions)
	}
	return os.FileMode(mode), nil
}

// ExpandPath replaces a leading ~ with the user's home directory
func ExpandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// getConfigPath returns the configuration file path
func getConfigPath() (string, error) {
	// Check for custom config path
	if customPath := os.Getenv("AESCORE_CONFIG"); customPath != "" {
		return customPath, nil
	}

	// Use XDG_CONFIG_HOME if set
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "aescore", "config.json"), nil
	}

	// Default to ~/.config/aescore/config.json
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "aescore", "config.json"), nil
}
