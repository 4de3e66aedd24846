package cli

import (
	"fmt"

	"github.com/Davincible/aescore/internal/validation"
	"github.com/Davincible/aescore/pkg/crypto/keyshare"
	"github.com/Davincible/aescore/pkg/crypto/mnemonic"
	"github.com/Davincible/aescore/pkg/secure"
	"github.com/Davincible/aescore/pkg/sharestore"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type SplitResult struct {
	Shares      []string `json:"shares"`
	Threshold   int      `json:"threshold"`
	Total       int      `json:"total"`
	Fingerprint string   `json:"fingerprint"`
	ShareSetID  string   `json:"share_set_id,omitempty"`
}

func NewSplitCommand() *cobra.Command {
	var (
		keys      keySource
		parts     int
		threshold int
		storeName string
		storePass string
		tags      []string
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a key into Shamir shares",
		Long: `Split a 128-bit key into shares using Shamir's Secret Sharing. Any
threshold number of shares reconstructs the key with 'combine'; fewer reveal
nothing about it.

The key fingerprint is printed so a reconstruction can be checked.`,
		Example: `  # 3-of-5 split of a hex key
  aescore split --parts 5 --threshold 3 --key 000102030405060708090a0b0c0d0e0f

  # Split the key stored in a key file
  aescore split --parts 3 --threshold 2 --keystore ~/.aescore/key.json

  # Keep a copy of the shares in the encrypted share store
  aescore split -n 5 -m 3 --key 000102030405060708090a0b0c0d0e0f --store team --store-password s3cret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateSplitParams(parts, threshold); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			key, _, err := keys.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			defer secure.Zero(key[:])

			shares, err := keyshare.Split(key, keyshare.Config{Parts: parts, Threshold: threshold})
			if err != nil {
				return err
			}

			result := SplitResult{
				Shares:      make([]string, len(shares)),
				Threshold:   threshold,
				Total:       parts,
				Fingerprint: mnemonic.Fingerprint(key),
			}
			for i, share := range shares {
				result.Shares[i] = share.Hex()
			}

			if storeName != "" {
				store, err := openShareStore(cfg, storePass)
				if err != nil {
					return err
				}
				set := sharestore.NewShareSet(storeName, threshold, result.Fingerprint, shares)
				set.Tags = tags
				if err := store.AddShareSet(set); err != nil {
					return fmt.Errorf("failed to store shares: %w", err)
				}
				result.ShareSetID = set.ID
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen, color.Bold)
			red := color.New(color.FgRed, color.Bold)

			green.Fprintf(out, "Created %d shares with threshold %d\n", parts, threshold)
			fmt.Fprintf(out, "Key fingerprint: %s\n\n", result.Fingerprint)
			for i, share := range result.Shares {
				fmt.Fprintf(out, "Share %d: %s\n", i+1, share)
			}
			fmt.Fprintln(out)
			if result.ShareSetID != "" {
				green.Fprintf(out, "✅ Shares stored as '%s' (%s)\n", storeName, result.ShareSetID[:8])
			}
			red.Fprintln(out, "⚠️  Store each share in a different secure location.")

			return nil
		},
	}

	keys.register(cmd)
	cmd.Flags().IntVarP(&parts, "parts", "n", 3, "Number of shares to create")
	cmd.Flags().IntVarP(&threshold, "threshold", "m", 2, "Number of shares needed to reconstruct")
	cmd.Flags().StringVar(&storeName, "store", "", "Also save the shares in the share store under this name")
	cmd.Flags().StringVar(&storePass, "store-password", "", "Encrypt the share store with this password")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tags for the stored share set")

	return cmd
}
