package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/extract"
	"github.com/kailas-cloud/catalogix/internal/repository/blob"
	"github.com/kailas-cloud/catalogix/internal/usecase/catalog"
)

func newEnsureCollectionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-collection",
		Short: "Create the configured vector collection or verify the existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.collection.Ensure(cmd.Context()); err != nil {
				return err
			}
			col := a.collection.Collection()
			fmt.Fprintf(cmd.OutOrStdout(), "collection %s ready (dim=%d, metric=%s)\n",
				col.PhysicalName(), col.Dimension(), col.Metric())
			return nil
		},
	}
}

func newReindexCmd(g *globals) *cobra.Command {
	var req catalog.ReindexRequest

	cmd := &cobra.Command{
		Use:   "reindex [product-id...]",
		Short: "Re-embed and upsert products; all of them when no ids are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.collection.Ensure(cmd.Context()); err != nil {
				return err
			}

			req.IDs = args
			report, err := a.catalog.Reindex(cmd.Context(), req, func(r catalog.ReindexReport) {
				if done := r.Indexed + r.Skipped + r.Failed; done%100 == 0 {
					logger.Info("reindex progress",
						zap.Int("total", r.Total),
						zap.Int("indexed", r.Indexed),
						zap.Int("failed", r.Failed),
					)
				}
			})
			// частичный отчёт печатаем и при отмене
			printJSON(cmd, report)
			return err
		},
	}
	cmd.Flags().BoolVar(&req.StaleOnly, "stale", false, "only products not currently indexed")
	cmd.Flags().BoolVar(&req.Force, "force", false, "ignore stored fingerprints")
	return cmd
}

func newSearchCmd(g *globals) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a semantic product search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.catalog.Search(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tID\tNAME")
			for _, r := range results {
				fmt.Fprintf(tw, "%.4f\t%s\t%s\n", r.Score, r.Product.ID(), r.Product.Name())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of results (0 = search.top_k_default)")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var maxPages int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract <file|url>",
		Short: "Print the text extracted from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := args[0]
			if !strings.Contains(ref, "://") {
				abs, err := filepath.Abs(ref)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", ref, err)
				}
				if _, err := os.Stat(abs); err != nil {
					return err
				}
				ref = blob.FileURL(abs)
			}

			doc, err := blob.NewDefault("").Fetch(cmd.Context(), ref)
			if err != nil {
				return err
			}
			out, err := extract.New().WithMaxPages(maxPages).Extract(doc)
			if err != nil {
				return err
			}

			if asJSON {
				printJSON(cmd, out)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop PDF extraction after n pages (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print text, page count and metadata as JSON")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
