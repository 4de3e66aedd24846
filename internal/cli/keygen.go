package cli

import (
	"fmt"
	"log/slog"

	"github.com/Davincible/aescore/pkg/config"
	"github.com/Davincible/aescore/pkg/crypto/mnemonic"
	"github.com/Davincible/aescore/pkg/secure"
	"github.com/Davincible/aescore/pkg/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type KeygenResult struct {
	Key         string `json:"key"`
	Mnemonic    string `json:"mnemonic"`
	Fingerprint string `json:"fingerprint"`
	Keystore    string `json:"keystore,omitempty"`
}

func NewKeygenCommand() *cobra.Command {
	var (
		save     bool
		out      string
		password string
		quiet    bool
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random 128-bit key",
		Long: `Generate a random AES-128 key and print it as hex and as a 12-word
BIP-39 mnemonic. With --save the key is written to a password-protected key
file instead of being printed.`,
		Example: `  # Print a new key
  aescore keygen

  # Save a new key to the default key file
  aescore keygen --save

  # Save to a specific file
  aescore keygen --save --out ./team.key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			m, err := mnemonic.NewKeyMnemonic()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			key, err := m.Key()
			if err != nil {
				return err
			}
			defer secure.Zero(key[:])

			result := KeygenResult{
				Fingerprint: mnemonic.Fingerprint(key),
			}

			if save {
				path := out
				if path == "" {
					path = cfg.Storage.DefaultKeystore
				}
				if path, err = config.ExpandPath(path); err != nil {
					return err
				}

				if password == "" {
					password, err = readPassphrase(cmd, "Choose a key file password: ")
					if err != nil {
						return err
					}
					confirm, err := readPassphrase(cmd, "Repeat password: ")
					if err != nil {
						return err
					}
					if !secure.ConstantTimeCompare([]byte(password), []byte(confirm)) {
						return fmt.Errorf("passwords do not match")
					}
				}

				perm, err := cfg.Storage.Perm()
				if err != nil {
					return err
				}
				ks := storage.NewKeyStore(path, cfg.Storage.KeystoreIterations)
				ks.Perm = perm
				if ks.Exists() {
					if !force {
						return fmt.Errorf("key file %s already exists (use --force to replace it)", path)
					}
					if err := ks.Delete(); err != nil {
						return fmt.Errorf("failed to remove old key file: %w", err)
					}
					slog.Debug("Wiped existing key file", "path", path)
				}
				if err := ks.Save(key, []byte(password)); err != nil {
					return fmt.Errorf("failed to save key: %w", err)
				}
				slog.Debug("Saved key file", "path", path)
				result.Keystore = path
			}

			// Saved keys are only shown when asked for
			if !save || !quiet {
				result.Key = encodeBytes(key[:], "hex")
				result.Mnemonic = m.Words()
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			return outputKeygenText(cmd, result)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Save the key to a password-protected key file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Key file path (default from config)")
	cmd.Flags().StringVar(&password, "password", "", "Key file password (prompted if omitted)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "With --save, do not print the key")
	cmd.Flags().BoolVar(&force, "force", false, "With --save, wipe and replace an existing key file")

	return cmd
}

func outputKeygenText(cmd *cobra.Command, result KeygenResult) error {
	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	if result.Key != "" {
		yellow.Fprint(out, "Key:         ")
		fmt.Fprintln(out, result.Key)
		yellow.Fprint(out, "Mnemonic:    ")
		fmt.Fprintln(out, result.Mnemonic)
	}
	yellow.Fprint(out, "Fingerprint: ")
	fmt.Fprintln(out, result.Fingerprint)

	if result.Keystore != "" {
		fmt.Fprintln(out)
		green.Fprintf(out, "✅ Key saved to: %s\n", result.Keystore)
	}
	if result.Key != "" {
		fmt.Fprintln(out)
		red.Fprintln(out, "⚠️  Anyone with this key can decrypt what it protects. Store it securely.")
	}

	return nil
}
