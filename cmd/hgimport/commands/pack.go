package commands

import (
	"fmt"
	"os"
	"strings"

	"hgimport/pkg/packstore"
	"hgimport/pkg/treemanifest"
	"hgimport/pkg/types"

	"github.com/spf13/cobra"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Create and inspect local tree packs",
}

var packCreateCmd = &cobra.Command{
	Use:   "create PACK NODE=FILE...",
	Short: "Write tree manifest texts into a pack file",
	Long: `Create a pack file holding the tree manifest text of each NODE, read from FILE.
The pack is named PACK` + packstore.PackExt + ` unless PACK already has the extension.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !strings.HasSuffix(path, packstore.PackExt) {
			path += packstore.PackExt
		}

		trees := make(map[types.ManifestNode][]byte, len(args)-1)
		for _, arg := range args[1:] {
			hex, file, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("expected NODE=FILE, got %q", arg)
			}
			node, err := types.ParseManifestNode(hex)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			// 写入前校验格式
			if _, err := treemanifest.Parse(data); err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			trees[node] = data
		}

		w, err := packstore.Create(path)
		if err != nil {
			return err
		}
		if err := w.AddAll(trees); err != nil {
			_ = w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d trees to %s\n", len(trees), path)
		return nil
	},
}

var packShowCmd = &cobra.Command{
	Use:   "show PACK NODE",
	Short: "Print the tree manifest text stored for NODE",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := types.ParseManifestNode(args[1])
		if err != nil {
			return err
		}
		src, err := packstore.OpenBoltSource(args[0])
		if err != nil {
			return err
		}
		defer src.Close()

		data, ok, err := src.Get(node)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("node %s not in %s", node, args[0])
		}
		entries, err := treemanifest.Parse(data)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%x %-2s %s\n", e.Node, flagName(e.Flag), e.Name)
		}
		return nil
	},
}

func flagName(f treemanifest.Flag) string {
	if f == treemanifest.FlagNone {
		return "-"
	}
	return string(rune(f))
}

func init() {
	packCmd.AddCommand(packCreateCmd, packShowCmd)
	rootCmd.AddCommand(packCmd)
}
