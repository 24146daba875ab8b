package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Faultbox/estateview/internal/app"
	"github.com/Faultbox/estateview/internal/provider"
)

var (
	fetchAddress string
	fetchOutput  string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [building-id]",
	Short: "Download a building model through the configured provider",
	Long: `Fetch the OBJ model for a building id, or for the first building at
--address that has a model, and write it to --output or stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchAddress, "address", "a", "", "Look the building up by address")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "Write the model to this file")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	id := ""
	if len(args) == 1 {
		id = strings.TrimSpace(args[0])
	}
	if id == "" && strings.TrimSpace(fetchAddress) == "" {
		return fmt.Errorf("need a building id or --address")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := app.NewSource(cfg, nil)
	if err != nil {
		return err
	}
	m, err := fetchModel(cmd.Context(), src, id, fetchAddress)
	if err != nil {
		return err
	}

	if fetchOutput == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), m.OBJ)
		return err
	}
	if err := os.WriteFile(fetchOutput, []byte(m.OBJ), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d vertices, %d faces, %d bytes -> %s\n",
		m.BuildingID, m.Stats.VertexCount, m.Stats.FaceCount, m.Stats.Size, fetchOutput)
	return nil
}

// fetchModel resolves address when id is empty and fetches the model.
// A missing building or model is an error here, unlike in the viewer.
func fetchModel(ctx context.Context, src provider.Source, id, address string) (*provider.Model, error) {
	if id == "" {
		found, err := src.LookupBuildingID(ctx, strings.TrimSpace(address))
		if err != nil {
			return nil, err
		}
		if found == "" {
			return nil, fmt.Errorf("no building with a model at %q", address)
		}
		id = found
	}
	m, err := src.FetchModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no model for building %s", id)
	}
	return m, nil
}
