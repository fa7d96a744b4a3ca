package masat

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/automatesecurity/masat/internal/drift"
)

var diffCmd = &cobra.Command{
	Use:   "diff <target>",
	Short: "Show what changed between a target's two most recent runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		svc, err := buildService()
		if err != nil {
			return err
		}
		res, err := svc.Diff(cmd.Context(), target)
		if err != nil {
			return err
		}
		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		if res == nil {
			fmt.Printf("Not enough history for %s: need at least two stored runs.\n", target)
			return nil
		}
		printDiff(res)
		return nil
	},
}

func printDiff(res *drift.Result) {
	fmt.Printf("Drift for %s (run #%d -> #%d)\n\n", res.Target, res.OldRunID, res.NewRunID)

	fmt.Printf("New findings (%d):\n", len(res.NewFindings))
	for _, f := range res.NewFindings {
		fmt.Printf("  [%d] %s (%s)\n", f.Severity, f.Title, f.Category)
	}
	if len(res.NewFindings) == 0 {
		fmt.Println("  none")
	}

	fmt.Printf("Resolved findings (%d):\n", len(res.ResolvedFindings))
	for _, f := range res.ResolvedFindings {
		fmt.Printf("  [%d] %s (%s)\n", f.Severity, f.Title, f.Category)
	}
	if len(res.ResolvedFindings) == 0 {
		fmt.Println("  none")
	}

	exp := res.Exposure
	fmt.Println("Exposure:")
	if len(exp.AddedPorts) == 0 && len(exp.RemovedPorts) == 0 && !exp.ServerHeaderChanged {
		fmt.Println("  no changes")
		return
	}
	if len(exp.AddedPorts) > 0 {
		fmt.Printf("  added ports: %s\n", strings.Join(exp.AddedPorts, ", "))
	}
	if len(exp.RemovedPorts) > 0 {
		fmt.Printf("  removed ports: %s\n", strings.Join(exp.RemovedPorts, ", "))
	}
	if exp.ServerHeaderChanged {
		fmt.Printf("  server header: %q -> %q\n", exp.OldServerHeader, exp.NewServerHeader)
	}
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
