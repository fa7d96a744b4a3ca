package masat

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/automatesecurity/masat/internal/issues"
	"github.com/automatesecurity/masat/internal/types"
	"github.com/automatesecurity/masat/pkg/core"
)

var (
	flagIssueStatus string
	flagIssueOwner  string
	flagIssueLimit  int
	flagIssueOffset int

	flagSetStatus string
	flagSetOwner  string
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List and update tracked issues",
}

var issuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues sorted by severity and recency",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService()
		if err != nil {
			return err
		}
		var status, owner *string
		if flagIssueStatus != "" {
			status = &flagIssueStatus
		}
		if flagIssueOwner != "" {
			owner = &flagIssueOwner
		}
		page, err := svc.Issues(cmd.Context(), status, owner, flagIssueLimit, flagIssueOffset)
		if err != nil {
			return err
		}
		if flagJSON {
			return core.MarshalIssues(os.Stdout, page.Items)
		}
		printIssueTable(page)
		return nil
	},
}

var issuesUpdateCmd = &cobra.Command{
	Use:   "update <fingerprint>",
	Short: "Change an issue's status or owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fp := args[0]
		var status, owner *string
		if cmd.Flags().Changed("status") {
			status = &flagSetStatus
		}
		if cmd.Flags().Changed("owner") {
			owner = &flagSetOwner
		}

		svc, err := buildService()
		if err != nil {
			return err
		}

		// Optimistic local write: stage, send, then commit or roll back on
		// the server's answer.
		ledger := issues.NewLedger()
		patch := issues.Patch{Owner: owner}
		if status != nil {
			if st, err := types.ParseStatus(*status); err == nil {
				patch.Status = &st
			}
		}
		ledger.Stage(fp, patch)

		updated, err := svc.UpdateIssue(cmd.Context(), fp, status, owner, nil)
		if err != nil {
			ledger.Rollback(fp)
			var conflict *issues.ConflictError
			if errors.As(err, &conflict) {
				fmt.Fprintf(os.Stderr, "conflict: issue is now %s (version %d); re-run with current state\n",
					conflict.Current.Status, conflict.Current.Version)
			}
			return err
		}
		ledger.Commit(fp)

		if flagJSON {
			return core.MarshalIssues(os.Stdout, []core.Issue{updated})
		}
		fmt.Printf("%s -> status=%s owner=%q (version %d)\n", updated.Fingerprint, updated.Status, updated.Owner, updated.Version)
		return nil
	},
}

func printIssueTable(page issues.Page) {
	if len(page.Items) == 0 {
		fmt.Println("No issues tracked.")
		return
	}
	maxAsset := 5
	for _, is := range page.Items {
		if l := len(is.Asset); l > maxAsset {
			maxAsset = l
		}
	}
	fmt.Printf("%-4s %-14s %-*s %-10s %-16s %s\n", "SEV", "STATUS", maxAsset, "ASSET", "CATEGORY", "FINGERPRINT", "TITLE")
	for _, is := range page.Items {
		fmt.Printf("%-4d %-14s %-*s %-10s %-16s %s\n",
			is.Severity, is.Status, maxAsset, is.Asset, is.Category, is.Fingerprint, is.Title)
	}
	fmt.Printf("\nShowing %d of %d issue(s)\n", len(page.Items), page.Total)
}

func init() {
	issuesListCmd.Flags().StringVar(&flagIssueStatus, "status", "", "filter by status")
	issuesListCmd.Flags().StringVar(&flagIssueOwner, "owner", "", "filter by owner")
	issuesListCmd.Flags().IntVar(&flagIssueLimit, "limit", 30, "page size")
	issuesListCmd.Flags().IntVar(&flagIssueOffset, "offset", 0, "page offset")

	issuesUpdateCmd.Flags().StringVar(&flagSetStatus, "status", "", "new status")
	issuesUpdateCmd.Flags().StringVar(&flagSetOwner, "owner", "", "new owner")

	issuesCmd.AddCommand(issuesListCmd, issuesUpdateCmd)
	rootCmd.AddCommand(issuesCmd)
}
