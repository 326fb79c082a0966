package commands

import (
	"fmt"

	"hgimport/pkg/exporter"
	"hgimport/pkg/prefetch"
	"hgimport/pkg/types"

	"github.com/spf13/cobra"
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch TREE [PATTERN...]",
	Short: "Import file contents under a tree that match gitignore-style patterns",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		root, err := types.ParseHash(args[0])
		if err != nil {
			return err
		}

		rules, _ := cmd.Flags().GetString("rules")
		m := prefetch.NewMatcher(args[1:]...)
		if rules != "" {
			if m, err = prefetch.NewMatcherFromFile(rules, args[1:]...); err != nil {
				return err
			}
		} else if len(args) == 1 {
			return fmt.Errorf("no patterns given (pass PATTERN arguments or --rules)")
		}

		im, err := HG.NewImporter(ctx)
		if err != nil {
			return err
		}
		defer im.Close()

		res, err := prefetch.Run(ctx, exporter.NewExporter(HG.Store), im, root, m, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "prefetched %d files (%d bytes)\n", res.Matched, res.Bytes)
		return nil
	},
}

func init() {
	prefetchCmd.Flags().String("rules", "", "file with one pattern per line")
	rootCmd.AddCommand(prefetchCmd)
}
