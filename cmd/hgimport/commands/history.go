package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent imports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rev, _ := cmd.Flags().GetString("rev")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := HG.Repository.ListImports(cmd.Context(), rev, limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No imports yet.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tREV\tSTRATEGY\tROOT\tTREES\tFETCHES\tDURATION")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				r.CreatedAt.Local().Format(time.DateTime), r.Revision, r.Strategy, r.RootTree.Short(),
				r.Stats.TreesWritten, r.Stats.RemoteFetches, r.Stats.Duration.Round(time.Millisecond))
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().String("rev", "", "only show imports of this revision")
	historyCmd.Flags().Int("limit", 20, "maximum number of records")
	rootCmd.AddCommand(historyCmd)
}
