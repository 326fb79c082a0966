package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hgimport/pkg/importer"
	"hgimport/pkg/types"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var importCmd = &cobra.Command{
	Use:   "import REV...",
	Short: "Import the full tree of one or more revisions",
	Long: `Import the manifest of each revision into the object store and print its root tree hash.

Tree manifests are used when the helper supports them and local packs exist,
otherwise the flat manifest is streamed. With --jobs N, N helper processes
import revisions in parallel.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, _ := cmd.Flags().GetInt("jobs")
		strategy, _ := cmd.Flags().GetString("strategy")
		if jobs < 1 {
			jobs = 1
		}
		jobs = min(jobs, len(args))

		var importFn func(*importer.Importer, context.Context, string) (types.Hash, error)
		switch strategy {
		case "auto":
			importFn = (*importer.Importer).ImportManifest
		case "tree":
			importFn = (*importer.Importer).ImportTreeManifest
		case "flat":
			importFn = (*importer.Importer).ImportFlatManifest
		default:
			return fmt.Errorf("unknown strategy %q (want auto, tree or flat)", strategy)
		}

		revs := make(chan string)
		var mu sync.Mutex
		out := cmd.OutOrStdout()

		// 每个 worker 独占一个 helper 进程
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			defer close(revs)
			for _, rev := range args {
				select {
				case revs <- rev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		for range jobs {
			g.Go(func() error {
				im, err := HG.NewImporter(ctx)
				if err != nil {
					return err
				}
				defer im.Close()

				for rev := range revs {
					root, err := importFn(im, ctx, rev)
					if err != nil {
						return fmt.Errorf("import %s: %w", rev, err)
					}
					st := im.LastStats()
					mu.Lock()
					fmt.Fprintf(out, "%s %s (trees written %d, existing %d, remote fetches %d, %s)\n",
						root, rev, st.TreesWritten, st.TreesExisting, st.RemoteFetches, st.Duration.Round(time.Millisecond))
					mu.Unlock()
				}
				return nil
			})
		}
		return g.Wait()
	},
}

var manifestNodeCmd = &cobra.Command{
	Use:   "manifest-node REV",
	Short: "Print the root manifest node of a revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		im, err := HG.NewImporter(cmd.Context())
		if err != nil {
			return err
		}
		defer im.Close()

		node, err := im.ResolveManifestNode(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), node)
		return nil
	},
}

func init() {
	importCmd.Flags().IntP("jobs", "j", 1, "number of helper processes")
	importCmd.Flags().String("strategy", "auto", "auto, tree or flat")
	rootCmd.AddCommand(importCmd, manifestNodeCmd)
}
