package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"linkproxy/internal/domain/audit"
	"linkproxy/internal/infrastructure/postgres"
)

var auditTailFlags struct {
	limit  int
	format string
}

var auditTailCmd = &cobra.Command{
	Use:   "audit-tail",
	Short: "Print the most recent audit events",
	Long: `Print the most recent audit events from the audit database, newest first.

Examples:
  # Last 20 events as a table
  admin audit-tail

  # Last 100 events as JSON lines
  admin audit-tail --limit 100 --format json`,
	Args: cobra.NoArgs,
	RunE: runAuditTail,
}

func init() {
	auditTailCmd.Flags().IntVarP(&auditTailFlags.limit, "limit", "n", 20, "number of events to print")
	auditTailCmd.Flags().StringVar(&auditTailFlags.format, "format", "table", "output format (table, json)")
	rootCmd.AddCommand(auditTailCmd)
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	if auditTailFlags.limit < 1 {
		return errors.New("--limit must be at least 1")
	}
	if auditTailFlags.format != "table" && auditTailFlags.format != "json" {
		return fmt.Errorf("unknown format %q", auditTailFlags.format)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return errors.New("audit database is disabled (set AUDIT_DB_ENABLED=true)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	return printAuditTail(ctx, cmd.OutOrStdout(), postgres.NewAuditRepository(db), auditTailFlags.limit, auditTailFlags.format)
}

// printAuditTail writes the newest limit events from r to w.
func printAuditTail(ctx context.Context, w io.Writer, r audit.Reader, limit int, format string) error {
	events, err := r.ListRecent(ctx, limit)
	if err != nil {
		return err
	}

	if format == "json" {
		return writeEventsJSON(w, events)
	}

	total, err := r.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "showing %d of %d events\n\n", len(events), total)
	return writeEventsTable(w, events)
}

func writeEventsJSON(w io.Writer, events []*audit.Event) error {
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func writeEventsTable(w io.Writer, events []*audit.Event) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOPERATION\tSTATUS\tOUTCOME\tERROR CODE\tDURATION\tITEM\tREQUEST ID")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%dms\t%s\t%s\n",
			e.OccurredAt.Local().Format(time.DateTime),
			e.Operation,
			e.Status,
			e.Outcome,
			dash(e.ErrorCode),
			e.DurationMS,
			dash(shortFingerprint(e.ItemFingerprint)),
			dash(e.RequestID),
		)
	}
	return tw.Flush()
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
