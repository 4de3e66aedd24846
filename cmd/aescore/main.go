package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Davincible/aescore/internal/cli"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:   "aescore",
		Short: "AES-128 single-block encryption engine",
		Long: `aescore implements the AES-128 block cipher from FIPS-197.

It encrypts exactly one 16-byte block under a 128-bit key and can show
the state after every round and the full key schedule, which makes it
useful for checking other implementations and for teaching.

Features:
- Single-block AES-128 encryption with per-round tracing
- Key schedule expansion (44 words, 11 round keys)
- Keys as hex, 12-word BIP-39 mnemonics or PBKDF2 passphrases
- Password-protected key files
- Shamir splitting of keys for backup, with an optional share store
- Built-in known-answer self test

No chaining modes, padding or decryption are provided.`,
		Version:      fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	rootCmd.AddCommand(
		cli.NewEncryptCommand(),
		cli.NewExpandCommand(),
		cli.NewKeygenCommand(),
		cli.NewSplitCommand(),
		cli.NewCombineCommand(),
		cli.NewSharesCommand(),
		cli.NewSelftestCommand(),
	)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
