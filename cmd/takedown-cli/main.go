// Package main implements the takedown-cli command-line tool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/GSharvesh/Hac-KP/pkg/client"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getClient creates an API client from the command flags.
func getClient(cmd *cobra.Command) *client.Client {
	apiURL, _ := cmd.Root().PersistentFlags().GetString("api-url")
	actorID, _ := cmd.Root().PersistentFlags().GetString("actor-id")
	role, _ := cmd.Root().PersistentFlags().GetString("role")
	purpose, _ := cmd.Root().PersistentFlags().GetString("purpose")

	return client.New(client.Config{
		BaseURL: apiURL,
		Actor: models.Actor{
			ID:      actorID,
			Role:    models.Role(role),
			Purpose: purpose,
		},
		Timeout: 30 * time.Second,
	})
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

var rootCmd = &cobra.Command{
	Use:     "takedown-cli",
	Short:   "Takedown CLI - Case Workflow Management",
	Long:    `Takedown CLI provides command-line access to takedown case submission, review, and audit operations.`,
	Version: version,
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(caseCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)

	// Global flags
	rootCmd.PersistentFlags().String("api-url", "http://localhost:8080", "Takedown API URL")
	rootCmd.PersistentFlags().String("actor-id", "", "Actor ID sent with every request")
	rootCmd.PersistentFlags().String("role", "officer", "Actor role (victim, officer, admin, system)")
	rootCmd.PersistentFlags().String("purpose", "", "Access purpose recorded in the audit trail")
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

// ============================================================================
// Case Commands
// ============================================================================

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Case workflow management",
	Long:  `Submit, inspect, and transition takedown cases.`,
}

var caseSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new takedown case",
	RunE:  runCaseSubmit,
}

var caseGetCmd = &cobra.Command{
	Use:   "get [case-id]",
	Short: "Get case details and SLA timer",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaseGet,
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases",
	RunE:  runCaseList,
}

var caseTransitionCmd = &cobra.Command{
	Use:   "transition [case-id]",
	Short: "Apply a workflow action to a case",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaseTransition,
}

var caseLineageCmd = &cobra.Command{
	Use:   "lineage [case-id]",
	Short: "Show a duplicate case's origin chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaseLineage,
}

var caseSubmissionsCmd = &cobra.Command{
	Use:   "submissions [case-id]",
	Short: "List a case's reported content items",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaseSubmissions,
}

func init() {
	// Case submit flags
	caseSubmitCmd.Flags().String("priority", "medium", "Case priority (low, medium, high, urgent)")
	caseSubmitCmd.Flags().String("jurisdiction", "", "Jurisdiction code")
	caseSubmitCmd.Flags().StringSlice("url", nil, "Reported URL (repeatable)")
	caseSubmitCmd.Flags().StringSlice("hash", nil, "Reported content hash (repeatable)")

	// Case list flags
	caseListCmd.Flags().String("status", "", "Filter by status")
	caseListCmd.Flags().String("priority", "", "Filter by priority")
	caseListCmd.Flags().String("submitter", "", "Filter by submitter ID")
	caseListCmd.Flags().String("officer", "", "Filter by assigned officer ID")
	caseListCmd.Flags().Int("limit", 50, "Maximum results")
	caseListCmd.Flags().Int("offset", 0, "Result offset")

	// Case transition flags
	caseTransitionCmd.Flags().String("action", "", "Workflow action to apply")
	caseTransitionCmd.Flags().String("reason", "", "Reason code (required for reject and escalate)")
	caseTransitionCmd.Flags().String("officer", "", "Officer ID for assign and reassign")

	caseCmd.AddCommand(caseSubmitCmd)
	caseCmd.AddCommand(caseGetCmd)
	caseCmd.AddCommand(caseListCmd)
	caseCmd.AddCommand(caseTransitionCmd)
	caseCmd.AddCommand(caseLineageCmd)
	caseCmd.AddCommand(caseSubmissionsCmd)
}

func runCaseSubmit(cmd *cobra.Command, args []string) error {
	priority, _ := cmd.Flags().GetString("priority")
	jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
	urls, _ := cmd.Flags().GetStringSlice("url")
	hashes, _ := cmd.Flags().GetStringSlice("hash")

	if len(urls) == 0 && len(hashes) == 0 {
		return fmt.Errorf("--url or --hash is required")
	}

	items := make([]client.SubmitItem, 0, len(urls)+len(hashes))
	for _, u := range urls {
		items = append(items, client.SubmitItem{Kind: "URL", Content: u})
	}
	for _, h := range hashes {
		items = append(items, client.SubmitItem{Kind: "HASH", Content: h})
	}

	c := getClient(cmd)
	ctx := context.Background()

	created, err := c.SubmitCase(ctx, client.SubmitCaseRequest{
		Priority:     priority,
		Jurisdiction: jurisdiction,
		Items:        items,
	})
	if err != nil {
		return fmt.Errorf("submit case: %w", err)
	}

	jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
	if jsonOutput {
		printJSON(created)
	} else if !created.Original() {
		fmt.Printf("Case created as duplicate: %s (origin %s, depth %d)\n",
			created.ID, created.OriginCaseID, created.LineageDepth)
	} else if created.SLADueAt != nil {
		fmt.Printf("Case created: %s (%s, due %s)\n",
			created.ID, created.Status, created.SLADueAt.Format(time.RFC3339))
	} else {
		fmt.Printf("Case created: %s (%s)\n", created.ID, created.Status)
	}
	return nil
}

func runCaseGet(cmd *cobra.Command, args []string) error {
	c := getClient(cmd)
	ctx := context.Background()

	detail, err := c.GetCase(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get case: %w", err)
	}

	jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
	if jsonOutput {
		printJSON(detail)
		return nil
	}

	cs := detail.Case
	fmt.Printf("ID: %s\nStatus: %s\nPriority: %s\nSubmitter: %s\n",
		cs.ID, cs.Status, cs.Priority, cs.SubmitterID)
	if cs.AssignedOfficerID != "" {
		fmt.Printf("Officer: %s\n", cs.AssignedOfficerID)
	}
	if detail.Timer != nil {
		fmt.Printf("Due: %s\nRemaining: %s\n",
			detail.Timer.DueAt.Format(time.RFC3339), time.Until(detail.Timer.DueAt).Round(time.Minute))
	}
	if cs.EscalationLevel > 0 {
		fmt.Printf("Escalation level: %d\n", cs.EscalationLevel)
	}
	return nil
}

func runCaseList(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	priority, _ := cmd.Flags().GetString("priority")
	submitter, _ := cmd.Flags().GetString("submitter")
	officer, _ := cmd.Flags().GetString("officer")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	c := getClient(cmd)
	ctx := context.Background()

	list, err := c.ListCases(ctx, client.ListCasesParams{
		Status:      status,
		Priority:    priority,
		SubmitterID: submitter,
		OfficerID:   officer,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return fmt.Errorf("list cases: %w", err)
	}

	jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
	if jsonOutput {
		printJSON(list)
	} else {
		for _, cs := range list.Cases {
			due := "-"
			if cs.SLADueAt != nil {
				due = cs.SLADueAt.Format(time.RFC3339)
			}
			fmt.Printf("%s  %-12s  %-7s  due %s\n", cs.ID, cs.Status, cs.Priority, due)
		}
	}
	return nil
}

func runCaseTransition(cmd *cobra.Command, args []string) error {
	action, _ := cmd.Flags().GetString("action")
	reason, _ := cmd.Flags().GetString("reason")
	officer, _ := cmd.Flags().GetString("officer")

	if action == "" {
		return fmt.Errorf("--action is required")
	}

	c := getClient(cmd)
	ctx := context.Background()

	updated, err := c.Transition(ctx, args[0], client.TransitionRequest{
		Action:    action,
		Reason:    reason,
		OfficerID: officer,
	})
	if err != nil {
		return fmt.Errorf("transition case: %w", err)
	}

	jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
	if jsonOutput {
		printJSON(updated)
	} else {
		fmt.Printf("Case %s: %s\n", updated.ID, updated.Status)
	}
	return nil
}

func runCaseLineage(cmd *cobra.Command, args []string) error {
	c := getClient(cmd)
	ctx := context.Background()

	lineage, err := c.Lineage(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get lineage: %w", err)
	}

	jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
	if jsonOutput {
		printJSON(lineage)
	} else {
		for i, cs := range lineage.Lineage {
			fmt.Printf("%d  %s  %s\n", i, cs.ID, cs.Status)
		}
	}
	return nil
}

func runCaseSubmissions(cmd *cobra.Command, args []string) error {
	c := getClient(cmd)
	ctx := context.Background()

	subs, err := c.Submissions(ctx, args[0])
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}

	jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
	if jsonOutput {
		printJSON(subs)
	} else {
		for _, s := range subs.Submissions {
			fmt.Printf("%s  %-4s  %s\n", s.ID, s.Kind, s.NormalizedContent)
		}
	}
	return nil
}

// ============================================================================
// Audit Commands
// ============================================================================

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail management",
	Long:  `Query, verify, and export per-case audit trails.`,
}

var auditTrailCmd = &cobra.Command{
	Use:   "trail [case-id]",
	Short: "Show a case's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		c := getClient(cmd)
		ctx := context.Background()

		trail, err := c.AuditTrail(ctx, args[0], limit, offset)
		if err != nil {
			return fmt.Errorf("get audit trail: %w", err)
		}

		jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
		if jsonOutput {
			printJSON(trail)
		} else {
			for _, e := range trail.Entries {
				fmt.Printf("%3d  %s  %-14s  %s -> %s  %s\n",
					e.Seq, e.CreatedAt.Format(time.RFC3339), e.Action, e.OldState, e.NewState, e.ActorID)
			}
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [case-id]",
	Short: "Verify a case's audit trail integrity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getClient(cmd)
		ctx := context.Background()

		result, err := c.VerifyAuditTrail(ctx, args[0])
		if err != nil {
			return fmt.Errorf("verify audit trail: %w", err)
		}

		if result.Valid {
			fmt.Println("Audit trail is VALID")
			return nil
		}
		fmt.Println("Audit trail is INVALID")
		os.Exit(1)
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export [case-id]",
	Short: "Export a case's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		c := getClient(cmd)
		ctx := context.Background()

		data, err := c.ExportAuditTrail(ctx, args[0], format)
		if err != nil {
			return fmt.Errorf("export audit trail: %w", err)
		}

		if output != "" {
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("Exported audit trail to %s\n", output)
		} else {
			fmt.Println(string(data))
		}
		return nil
	},
}

func init() {
	auditTrailCmd.Flags().Int("limit", 100, "Maximum results")
	auditTrailCmd.Flags().Int("offset", 0, "Result offset")

	auditExportCmd.Flags().String("format", "json", "Export format (json, csv)")
	auditExportCmd.Flags().String("output", "", "Output file")

	auditCmd.AddCommand(auditTrailCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
}

// ============================================================================
// Stats / Health Commands
// ============================================================================

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate case statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceStr, _ := cmd.Flags().GetString("since")

		var since time.Time
		if sinceStr != "" {
			var err error
			since, err = time.Parse(time.RFC3339, sinceStr)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
		}

		c := getClient(cmd)
		ctx := context.Background()

		stats, err := c.GetStats(ctx, since)
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		jsonOutput, _ := cmd.Root().PersistentFlags().GetBool("json")
		if jsonOutput {
			printJSON(stats)
		} else {
			fmt.Printf("Total: %d\nOpen: %d\nResolved: %d\nDuplicates: %d\nSLA violations: %d\n",
				stats.TotalCases, stats.OpenCases, stats.ResolvedCases,
				stats.DuplicateCases, stats.SLAViolations)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API health",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getClient(cmd)
		ctx := context.Background()

		resp, err := c.Health(ctx)
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}

		fmt.Println(resp.Status)
		return nil
	},
}

func init() {
	statsCmd.Flags().String("since", "", "Only count cases created after this time (RFC3339)")
}
