package commands

import (
	"errors"
	"fmt"

	"hgimport/pkg/exporter"
	"hgimport/pkg/storage"
	"hgimport/pkg/types"

	"github.com/spf13/cobra"
)

var lsTreeCmd = &cobra.Command{
	Use:   "ls-tree TREE",
	Short: "List a tree in git ls-tree format",
	Long: `List the entries of a stored tree. With --fetch, a tree missing from the
store is imported through the helper first (requires tree manifest support).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := types.ParseHash(args[0])
		if err != nil {
			return err
		}
		recursive, _ := cmd.Flags().GetBool("recursive")
		fetch, _ := cmd.Flags().GetBool("fetch")

		exp := exporter.NewExporter(HG.Store)
		err = exp.ListTree(ctx, id, recursive, cmd.OutOrStdout())
		if !fetch || !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		im, err := HG.NewImporter(ctx)
		if err != nil {
			return err
		}
		defer im.Close()
		// 重新解析会写入整棵子树
		if _, err := im.ImportTree(ctx, id); err != nil {
			return err
		}
		return exp.ListTree(ctx, id, recursive, cmd.OutOrStdout())
	},
}

var catCmd = &cobra.Command{
	Use:   "cat HASH",
	Short: "Write file contents to stdout",
	Long: `Write the contents of a blob to stdout, importing it through the helper when
the store does not have it. With --info, print an object summary instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		hash, err := types.ParseHash(args[0])
		if err != nil {
			return err
		}
		info, _ := cmd.Flags().GetBool("info")
		offline, _ := cmd.Flags().GetBool("offline")

		exp := exporter.NewExporter(HG.Store)
		if info {
			return exp.PrintObject(ctx, hash, cmd.OutOrStdout())
		}

		err = exp.ExportFile(ctx, hash, cmd.OutOrStdout())
		if offline || !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		im, err := HG.NewImporter(ctx)
		if err != nil {
			return err
		}
		defer im.Close()
		data, err := im.ImportFileContents(ctx, hash)
		if err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	lsTreeCmd.Flags().BoolP("recursive", "r", false, "recurse into subtrees")
	lsTreeCmd.Flags().Bool("fetch", false, "import missing trees through the helper")
	catCmd.Flags().Bool("info", false, "print an object summary instead of the contents")
	catCmd.Flags().Bool("offline", false, "do not start the helper for missing blobs")
	rootCmd.AddCommand(lsTreeCmd, catCmd)
}
