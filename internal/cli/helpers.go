package cli

import (
	"bufio"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Davincible/aescore/internal/validation"
	"github.com/Davincible/aescore/pkg/config"
	"github.com/Davincible/aescore/pkg/crypto/aes128"
	"github.com/Davincible/aescore/pkg/crypto/mnemonic"
	"github.com/Davincible/aescore/pkg/secure"
	"github.com/Davincible/aescore/pkg/sharestore"
	"github.com/Davincible/aescore/pkg/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// keySource collects the mutually exclusive ways a command can be given a key.
type keySource struct {
	keyHex     string
	words      string
	passphrase string
	askPass    bool
	keystore   string
	password   string
}

func (ks *keySource) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&ks.keyHex, "key", "k", "", "Key as 32 hex characters")
	cmd.Flags().StringVar(&ks.words, "mnemonic", "", "Key as a 12-word BIP-39 mnemonic")
	cmd.Flags().StringVar(&ks.passphrase, "passphrase", "", "Derive the key from a passphrase (PBKDF2)")
	cmd.Flags().BoolVar(&ks.askPass, "ask-passphrase", false, "Prompt for the passphrase to derive the key from")
	cmd.Flags().StringVar(&ks.keystore, "keystore", "", "Load the key from a key file created by 'keygen --save'")
	cmd.Flags().StringVar(&ks.password, "password", "", "Key file password (prompted if omitted)")
}

// resolve returns the key and a short description of where it came from.
func (ks *keySource) resolve(cmd *cobra.Command, cfg *config.Config) (aes128.Key, string, error) {
	set := 0
	for _, given := range []bool{ks.keyHex != "", ks.words != "", ks.passphrase != "" || ks.askPass, ks.keystore != ""} {
		if given {
			set++
		}
	}
	if set != 1 {
		return aes128.Key{}, "", fmt.Errorf("exactly one of --key, --mnemonic, --passphrase/--ask-passphrase or --keystore is required")
	}

	switch {
	case ks.keyHex != "":
		raw, err := validation.DecodeHex(ks.keyHex, "key")
		if err != nil {
			return aes128.Key{}, "", err
		}
		key, err := aes128.NewKey(raw)
		if err != nil {
			return aes128.Key{}, "", fmt.Errorf("invalid --key: %w", err)
		}
		return key, "hex", nil

	case ks.words != "":
		m, err := mnemonic.FromWords(ks.words)
		if err != nil {
			return aes128.Key{}, "", fmt.Errorf("invalid mnemonic: %w", err)
		}
		key, err := m.Key()
		if err != nil {
			return aes128.Key{}, "", err
		}
		return key, "mnemonic", nil

	case ks.passphrase != "" || ks.askPass:
		pass := ks.passphrase
		if pass == "" {
			var err error
			pass, err = readPassphrase(cmd, "Enter passphrase: ")
			if err != nil {
				return aes128.Key{}, "", err
			}
		}
		if err := validation.ValidatePassphrase(pass, cfg.Security.MinPassphraseLength); err != nil {
			return aes128.Key{}, "", err
		}
		key, err := mnemonic.DeriveKey([]byte(pass), []byte(cfg.KDF.Salt), cfg.KDF.Iterations)
		if err != nil {
			return aes128.Key{}, "", fmt.Errorf("failed to derive key: %w", err)
		}
		return key, "passphrase", nil

	default:
		path, err := config.ExpandPath(ks.keystore)
		if err != nil {
			return aes128.Key{}, "", err
		}
		pass := ks.password
		if pass == "" {
			pass, err = readPassphrase(cmd, "Enter key file password: ")
			if err != nil {
				return aes128.Key{}, "", err
			}
		}
		key, err := storage.NewKeyStore(path, cfg.Storage.KeystoreIterations).Load([]byte(pass))
		if err != nil {
			return aes128.Key{}, "", fmt.Errorf("failed to load key file: %w", err)
		}
		return key, "keystore", nil
	}
}

// wipeKey zeroes key when the configuration asks for key material to be wiped.
func wipeKey(cfg *config.Config, key *aes128.Key) {
	if cfg.Security.WipeMemory {
		secure.Zero(key[:])
	}
}

// loadConfig reads the user configuration and applies its UI settings.
func loadConfig() (*config.Config, error) {
	cm, err := config.NewConfigManager()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Debug("Loaded configuration", "path", cm.Path())

	cfg := cm.GetConfig()
	if !cfg.UI.UseColor {
		color.NoColor = true
	}
	return cfg, nil
}

// openShareStore opens the share store directory named in the configuration.
func openShareStore(cfg *config.Config, passphrase string) (*sharestore.ShareStore, error) {
	dir, err := config.ExpandPath(cfg.Storage.ShareStore)
	if err != nil {
		return nil, err
	}
	store, err := sharestore.NewShareStore(dir, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to open share store: %w", err)
	}
	slog.Debug("Opened share store", "path", dir, "encrypted", passphrase != "")
	return store, nil
}

// readPassphrase reads a passphrase from the terminal without echo, or one
// line from the command's input when it is not a terminal.
func readPassphrase(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(int(os.Stdin.Fd())) {
		passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(passBytes), nil
	}

	// Fallback for non-terminal
	reader := bufio.NewReader(cmd.InOrStdin())
	pass, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || pass == "") {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return strings.TrimSpace(pass), nil
}

func encodeBytes(b []byte, format string) string {
	if format == "base64" {
		return base64.StdEncoding.EncodeToString(b)
	}
	return hex.EncodeToString(b)
}

func jsonOutput(cmd *cobra.Command) bool {
	outputJSON, _ := cmd.Flags().GetBool("json")
	return outputJSON
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
