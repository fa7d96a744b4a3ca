package masat

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the current posture score and trend",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService()
		if err != nil {
			return err
		}
		dash, err := svc.Dashboard(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(dash)
		}

		fmt.Printf("Posture score: %d (%s)\n\n", dash.Scorecard.Score, dash.Scorecard.Grade)

		cats := make([]string, 0, len(dash.Scorecard.Categories))
		for name := range dash.Scorecard.Categories {
			cats = append(cats, name)
		}
		sort.Strings(cats)
		for _, name := range cats {
			fmt.Printf("  %-14s %3d (weight %.2f)\n", name, dash.Scorecard.Categories[name], dash.Scorecard.Weights[name])
		}

		m := dash.Metrics
		fmt.Printf("\nTargets: %d total, %d scanned in 30d (coverage %d%%)\n", m.TotalTargets, m.TargetsScanned30d, m.CoveragePct)
		fmt.Printf("Runs: %d in 24h, %d in 7d\n", m.Runs24h, m.Runs7d)
		fmt.Printf("Open ports: %d; owner coverage: %d%%\n", m.OpenPortsTotal, m.OwnerCoveragePct)
		fmt.Printf("Findings: crit %d / high %d / med %d / low %d / info %d\n",
			m.FindingsBySeverity["critical"], m.FindingsBySeverity["high"],
			m.FindingsBySeverity["medium"], m.FindingsBySeverity["low"],
			m.FindingsBySeverity["info"])

		if len(dash.Narrative) > 0 {
			fmt.Println("\nSince last week:")
			for _, line := range dash.Narrative {
				fmt.Println("  -", line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
