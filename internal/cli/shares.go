package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Davincible/aescore/pkg/sharestore"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ShareSetSummary describes a stored share set without its share data.
type ShareSetSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Threshold   int       `json:"threshold"`
	TotalShares int       `json:"total_shares"`
	Stored      int       `json:"stored"`
	Distributed int       `json:"distributed"`
	Fingerprint string    `json:"fingerprint"`
	Tags        []string  `json:"tags"`
	Created     time.Time `json:"created"`
}

func NewSharesCommand() *cobra.Command {
	var storePass string

	cmd := &cobra.Command{
		Use:   "shares",
		Short: "Manage share sets saved with 'split --store'",
		Long: `Track the share sets kept in the share store: list them, check that the
stored shares still parse and can rebuild the key, record which shares were
handed out, and delete sets that are no longer needed.

Share sets can be named by name or by ID.`,
		Example: `  # List all share sets
  aescore shares list

  # Check the stored shares of a set
  aescore shares verify team

  # Record that share 42 went to the bank vault; its data leaves the store
  aescore shares distribute team --index 42 --location "bank vault"

  # Remove a set, overwriting its file first
  aescore shares delete team --force`,
	}

	cmd.PersistentFlags().StringVar(&storePass, "store-password", "", "Share store password")

	cmd.AddCommand(
		newSharesListCommand(&storePass),
		newSharesVerifyCommand(&storePass),
		newSharesDistributeCommand(&storePass),
		newSharesDeleteCommand(&storePass),
	)

	return cmd
}

func newSharesListCommand(storePass *string) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored share sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreForCommand(*storePass)
			if err != nil {
				return err
			}

			sets := store.ListShareSets(tags)
			summaries := make([]ShareSetSummary, len(sets))
			for i, set := range sets {
				summaries[i] = summarizeShareSet(set)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No share sets stored.")
				return nil
			}

			cyan := color.New(color.FgCyan, color.Bold)
			for _, s := range summaries {
				cyan.Fprintf(out, "%s", s.Name)
				fmt.Fprintf(out, " (%s)\n", s.ID[:8])
				fmt.Fprintf(out, "  %d-of-%d, %d stored, %d distributed, fingerprint %s\n",
					s.Threshold, s.TotalShares, s.Stored, s.Distributed, s.Fingerprint)
				fmt.Fprintf(out, "  created %s", s.Created.Format("2006-01-02 15:04"))
				if len(s.Tags) > 0 {
					fmt.Fprintf(out, ", tags: %s", strings.Join(s.Tags, ", "))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Only list sets carrying all of these tags")

	return cmd
}

func newSharesVerifyCommand(storePass *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify NAME|ID",
		Short: "Check the stored shares of a set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreForCommand(*storePass)
			if err != nil {
				return err
			}

			set, err := findShareSet(store, args[0])
			if err != nil {
				return err
			}

			report, err := store.VerifyShares(set.ID)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				green := color.New(color.FgGreen, color.Bold)
				red := color.New(color.FgRed, color.Bold)
				yellow := color.New(color.FgYellow)

				for _, r := range report.Results {
					switch {
					case r.IsValid:
						green.Fprintf(out, "✓ share %d: %s\n", r.ShareIndex, r.Status)
					case r.Status == sharestore.ShareStatusDistributed:
						yellow.Fprintf(out, "- share %d: %s\n", r.ShareIndex, r.Status)
					default:
						red.Fprintf(out, "✗ share %d: %s", r.ShareIndex, r.Status)
						if r.Error != "" {
							fmt.Fprintf(out, " (%s)", r.Error)
						}
						fmt.Fprintln(out)
					}
				}
				fmt.Fprintf(out, "\n%d of %d shares stored and valid, threshold %d\n",
					report.ValidShares, report.TotalShares, set.Threshold)
				if report.IsRecoverable {
					green.Fprintln(out, "✅ Key can be rebuilt from the store")
				} else {
					yellow.Fprintln(out, "⚠️  Not enough stored shares to rebuild the key")
				}
			}

			return nil
		},
	}

	return cmd
}

func newSharesDistributeCommand(storePass *string) *cobra.Command {
	var (
		index    int
		location string
	)

	cmd := &cobra.Command{
		Use:   "distribute NAME|ID",
		Short: "Record that a share was handed out and drop its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if index < 1 || index > 255 {
				return fmt.Errorf("--index must be between 1 and 255 (got %d)", index)
			}

			store, err := openStoreForCommand(*storePass)
			if err != nil {
				return err
			}

			set, err := findShareSet(store, args[0])
			if err != nil {
				return err
			}

			if err := store.UpdateShareStatus(set.ID, index, sharestore.ShareStatusDistributed, location); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summarizeShareSet(set))
			}

			color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(),
				"✅ Share %d of '%s' marked as distributed\n", index, set.Name)
			return nil
		},
	}

	cmd.Flags().IntVar(&index, "index", 0, "Share index, as shown by 'shares verify'")
	cmd.Flags().StringVar(&location, "location", "", "Where the share was taken")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

func newSharesDeleteCommand(storePass *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete NAME|ID",
		Short: "Delete a stored share set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreForCommand(*storePass)
			if err != nil {
				return err
			}

			set, err := findShareSet(store, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !force {
				fmt.Fprintf(cmd.ErrOrStderr(), "This will delete share set '%s' (%s).\nAre you sure? (y/N): ", set.Name, set.ID[:8])

				response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "y" && response != "yes" {
					fmt.Fprintln(out, "Deletion cancelled.")
					return nil
				}
			}

			if err := store.DeleteShareSet(set.ID); err != nil {
				return fmt.Errorf("failed to delete share set: %w", err)
			}

			color.New(color.FgGreen, color.Bold).Fprintf(out, "✅ Share set '%s' deleted\n", set.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation")

	return cmd
}

func openStoreForCommand(storePass string) (*sharestore.ShareStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openShareStore(cfg, storePass)
}

// findShareSet accepts either a share set ID or its name.
func findShareSet(store *sharestore.ShareStore, ref string) (*sharestore.ShareSet, error) {
	set, err := store.GetShareSet(ref)
	if errors.Is(err, sharestore.ErrNotFound) {
		return store.FindByName(ref)
	}
	return set, err
}

func summarizeShareSet(set *sharestore.ShareSet) ShareSetSummary {
	s := ShareSetSummary{
		ID:          set.ID,
		Name:        set.Name,
		Threshold:   set.Threshold,
		TotalShares: set.TotalShares,
		Fingerprint: set.Fingerprint,
		Tags:        set.Tags,
		Created:     set.Created,
	}
	for _, info := range set.Shares {
		if info.Data != "" {
			s.Stored++
		}
		if info.Status == sharestore.ShareStatusDistributed {
			s.Distributed++
		}
	}
	return s
}
