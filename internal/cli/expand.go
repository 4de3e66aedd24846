package cli

import (
	"fmt"
	"strings"

	"github.com/Davincible/aescore/pkg/crypto/aes128"
	"github.com/Davincible/aescore/pkg/secure"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type ExpandResult struct {
	Words     int        `json:"words"`
	RoundKeys [][]string `json:"round_keys"`
}

func NewExpandCommand() *cobra.Command {
	var keys keySource

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the AES-128 key schedule",
		Long: `Expand a 128-bit key into its 44-word schedule and print the 11 round
keys, four words each.`,
		Example: `  # FIPS-197 Appendix A.1
  aescore expand --key 2b7e151628aed2a6abf7158809cf4f3c`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			key, _, err := keys.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			defer wipeKey(cfg, &key)

			ks := aes128.Expand(key)
			if cfg.Security.WipeMemory {
				defer func() {
					for i := range ks {
						secure.Zero(ks[i][:])
					}
				}()
			}

			result := ExpandResult{Words: len(ks)}
			for round := 0; round <= aes128.Rounds; round++ {
				rk := ks.RoundKey(round)
				words := make([]string, len(rk))
				for i, w := range rk {
					words[i] = w.String()
				}
				result.RoundKeys = append(result.RoundKeys, words)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			yellow := color.New(color.FgYellow)
			for round, words := range result.RoundKeys {
				yellow.Fprintf(out, "round %2d: ", round)
				fmt.Fprintln(out, strings.Join(words, " "))
			}
			return nil
		},
	}

	keys.register(cmd)

	return cmd
}
