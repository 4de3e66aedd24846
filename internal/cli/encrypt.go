package cli

import (
	"fmt"
	"log/slog"

	"github.com/Davincible/aescore/internal/validation"
	"github.com/Davincible/aescore/pkg/crypto/aes128"
	"github.com/Davincible/aescore/pkg/crypto/mnemonic"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type TraceStep struct {
	Phase string `json:"phase"`
	Round int    `json:"round"`
	State string `json:"state"`
}

type EncryptResult struct {
	Ciphertext  string      `json:"ciphertext"`
	Format      string      `json:"format"`
	KeySource   string      `json:"key_source"`
	Fingerprint string      `json:"key_fingerprint"`
	Trace       []TraceStep `json:"trace,omitempty"`
}

func NewEncryptCommand() *cobra.Command {
	var (
		keys   keySource
		block  string
		format string
		trace  bool
	)

	cmd := &cobra.Command{
		Use:   "encrypt [block]",
		Short: "Encrypt one 16-byte block with AES-128",
		Long: `Encrypt exactly one 16-byte block with AES-128 and print the ciphertext.

The block is given as 32 hex characters. No padding or chaining mode is
applied: input of any other length is rejected.

The key can be given as hex, as a 12-word BIP-39 mnemonic, derived from a
passphrase, or loaded from a key file.`,
		Example: `  # FIPS-197 Appendix C.1
  aescore encrypt --key 000102030405060708090a0b0c0d0e0f 00112233445566778899aabbccddeeff

  # Show the state after every round
  aescore encrypt --key 2b7e151628aed2a6abf7158809cf4f3c --trace 3243f6a8885a308d313198a2e0370734

  # Key from a key file, base64 output
  aescore encrypt --keystore ~/.aescore/key.json --format base64 -b 00112233445566778899aabbccddeeff`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				if block != "" {
					return fmt.Errorf("give the block either as an argument or with --block, not both")
				}
				block = args[0]
			}
			if block == "" {
				return fmt.Errorf("a 16-byte block is required")
			}

			if !cmd.Flags().Changed("format") {
				format = cfg.Defaults.OutputFormat
			}
			if err := validation.ValidateOutputFormat(format); err != nil {
				return err
			}
			if !cmd.Flags().Changed("trace") {
				trace = cfg.Defaults.Trace
			}

			plaintext, err := validation.DecodeHex(block, "block")
			if err != nil {
				return err
			}

			key, source, err := keys.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			defer wipeKey(cfg, &key)
			slog.Debug("Resolved key", "source", source, "fingerprint", mnemonic.Fingerprint(key))

			c, err := aes128.NewCipher(key[:])
			if err != nil {
				return err
			}
			if cfg.Security.WipeMemory {
				defer c.Destroy()
			}

			result := EncryptResult{
				Format:      format,
				KeySource:   source,
				Fingerprint: mnemonic.Fingerprint(key),
			}

			var tracer aes128.Tracer
			if trace {
				tracer = func(phase aes128.Phase, round int, s aes128.State) {
					slog.Debug("Round state", "phase", phase.String(), "round", round)
					result.Trace = append(result.Trace, TraceStep{
						Phase: phase.String(),
						Round: round,
						State: encodeBytes(s[:], "hex"),
					})
				}
			}

			ciphertext, err := c.EncryptTrace(plaintext, tracer)
			if err != nil {
				return fmt.Errorf("encryption failed: %w", err)
			}
			result.Ciphertext = encodeBytes(ciphertext, format)

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			return outputEncryptText(cmd, result)
		},
	}

	keys.register(cmd)
	cmd.Flags().StringVarP(&block, "block", "b", "", "Plaintext block as 32 hex characters")
	cmd.Flags().StringVarP(&format, "format", "f", "hex", "Ciphertext encoding (hex or base64)")
	cmd.Flags().BoolVarP(&trace, "trace", "t", false, "Print the state after every round")

	return cmd
}

func outputEncryptText(cmd *cobra.Command, result EncryptResult) error {
	out := cmd.OutOrStdout()

	if len(result.Trace) == 0 {
		fmt.Fprintln(out, result.Ciphertext)
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	cyan.Fprintf(out, "Key fingerprint: %s (%s)\n\n", result.Fingerprint, result.KeySource)
	for _, step := range result.Trace {
		fmt.Fprintf(out, "round %2d  %-16s %s\n", step.Round, step.Phase, step.State)
	}
	fmt.Fprintln(out)
	green.Fprint(out, "Ciphertext: ")
	fmt.Fprintln(out, result.Ciphertext)

	return nil
}
