// ABOUTME: threads and audit subcommands: read-only listings from the local store
// ABOUTME: Audit output is a table by default or JSON with --json

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/agentchat/internal/store"
	"github.com/2389/agentchat/internal/warehouse"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List the current user's threads, newest first",
	RunE:  runThreads,
}

var (
	auditThread string
	auditLimit  int
	auditJSON   bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recorded agent calls, newest first",
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditThread, "thread", "", "Only calls for this thread")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum records to show")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Print records as JSON")
}

func runThreads(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.identity.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}
	threads, err := a.svc.ListThreads(ctx, user)
	if err != nil {
		return err
	}
	printThreads(cmd.OutOrStdout(), threads)
	return nil
}

func printThreads(w io.Writer, threads []*store.Thread) {
	if len(threads) == 0 {
		fmt.Fprintln(w, "No threads.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tCREATED\tTITLE")
	for _, t := range threads {
		title := t.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.CreatedAt.Local().Format(time.DateTime), title)
	}
	tw.Flush()
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := store.AuditFilter{Limit: auditLimit}
	if auditThread != "" {
		filter.ThreadID = &auditThread
	}
	recs, err := a.store.ListAudit(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing audit records: %w", err)
	}

	if auditJSON {
		return printAuditJSON(cmd.OutOrStdout(), recs)
	}
	printAudit(cmd.OutOrStdout(), recs)
	return nil
}

func printAudit(w io.Writer, recs []*store.AuditRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No audit records.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tSTATUS\tTHREAD\tPARENT\tPROMPT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Millisecond),
			r.HTTPStatus,
			orDash(r.ThreadID),
			r.ParentMessageID,
			truncate(r.Prompt, 40))
	}
	tw.Flush()
}

func printResult(w io.Writer, res *warehouse.Result) {
	if len(res.Rows) == 0 {
		fmt.Fprintln(w, "Query returned no rows.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = truncate(c, 40)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	if res.Truncated {
		fmt.Fprintf(w, "(first %d rows shown)\n", len(res.Rows))
	}
}

type auditJSONRecord struct {
	ID              string    `json:"audit_id"`
	StartedAt       time.Time `json:"start_ts"`
	EndedAt         time.Time `json:"end_ts"`
	ThreadID        string    `json:"thread_id"`
	ParentMessageID int64     `json:"parent_message_id"`
	Prompt          string    `json:"prompt"`
	HTTPStatus      int       `json:"http_status"`
}

func printAuditJSON(w io.Writer, recs []*store.AuditRecord) error {
	out := make([]auditJSONRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, auditJSONRecord{
			ID:              r.ID,
			StartedAt:       r.StartedAt.UTC(),
			EndedAt:         r.EndedAt.UTC(),
			ThreadID:        r.ThreadID,
			ParentMessageID: r.ParentMessageID,
			Prompt:          r.Prompt,
			HTTPStatus:      r.HTTPStatus,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to maxLen runes with an ellipsis.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
