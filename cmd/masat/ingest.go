package masat

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/automatesecurity/masat/pkg/core"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <run.json>",
	Short: "Ingest a completed scan run from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		run, err := core.UnmarshalRun(f)
		if err != nil {
			return fmt.Errorf("decode run: %w", err)
		}

		svc, err := buildService()
		if err != nil {
			return err
		}
		stored, err := svc.Ingest(cmd.Context(), run)
		if err != nil {
			return err
		}
		if flagJSON {
			return core.MarshalRun(os.Stdout, stored)
		}
		fmt.Printf("stored run #%d for %s (%d findings)\n", stored.ID, stored.Target, len(stored.Findings))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
