package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Faultbox/estateview/internal/app"
	"github.com/Faultbox/estateview/internal/provider"
)

var searchCmd = &cobra.Command{
	Use:   "search [address]",
	Short: "List the buildings the provider knows at an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := app.NewSource(cfg, nil)
	if err != nil {
		return err
	}
	searcher, ok := src.(provider.Searcher)
	if !ok {
		return fmt.Errorf("provider does not support address search")
	}

	buildings, err := searcher.SearchBuildings(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if buildings == nil {
			buildings = []provider.Building{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(buildings)
	}
	if len(buildings) == 0 {
		fmt.Fprintln(out, "No buildings found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUILDING ID\tMODEL\tADDRESS\tLAT\tLON")
	for _, b := range buildings {
		has := "no"
		if b.HasModel {
			has = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6f\t%.6f\n", b.ID, has, b.Address, b.Lat, b.Lon)
	}
	return tw.Flush()
}
