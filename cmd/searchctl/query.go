package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gmaxsoft/elasticsearch-project/internal/catalog"
	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Run a full-text search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := opts.backend(cmd).Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), products)
			}
			return writeProducts(cmd.OutOrStdout(), products)
		},
	}
}

func newSuggestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "List autocomplete suggestions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			titles, err := opts.backend(cmd).Suggest(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), titles)
			}
			for _, t := range titles {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import [products.json]",
		Short: "Import products from a JSON file, or reload the server's catalog source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var products []domain.Product
			if len(args) == 1 {
				loaded, err := catalog.NewFileSource(args[0]).Load(cmd.Context())
				if err != nil {
					return err
				}
				products = loaded
				if products == nil {
					products = []domain.Product{}
				}
			}

			outcome, err := opts.backend(cmd).Import(cmd.Context(), products)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), outcome)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d, failed %d\n", outcome.Indexed, len(outcome.Failures))
			for _, f := range outcome.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "  %q: %s\n", f.ID, f.Reason)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeProducts(w io.Writer, products []domain.Product) error {
	if len(products) == 0 {
		_, err := fmt.Fprintln(w, "no results")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPRICE\tQTY")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s PLN\t%d\n", p.ID, p.Title, p.Category, p.Price.StringFixed(2), p.Quantity)
	}
	return tw.Flush()
}
