package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/registry"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := registry.LoadCatalog(cfg.Sources.Catalog)
		if err != nil {
			return err
		}
		printSources(cmd.OutOrStdout(), catalog.Sources)
		return nil
	},
}

func printSources(w io.Writer, profiles []model.SourceProfile) {
	for _, p := range profiles {
		chain := "default"
		if len(p.Chain) > 0 {
			chain = strings.Join(p.Chain, ",")
		}
		fmt.Fprintf(w, "%-18s %-9s chain=%s\n", p.Name, p.Mode, chain)
		for _, u := range p.URLs {
			fmt.Fprintf(w, "    %s\n", u)
		}
	}
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
