package cmd

import (
	"fmt"
	"time"

	"salesadmin/internal/metrics"
	"salesadmin/internal/services"

	"github.com/spf13/cobra"
)

var (
	keepDays   int
	beforeDate string
)

var auditCleanupCmd = &cobra.Command{
	Use:   "audit-cleanup",
	Short: "Delete permission audit logs older than a cutoff",
	Long: `Delete permission audit logs created before the cutoff and record the
cleanup itself as a new audit entry.

Examples:
  permctl audit-cleanup                       # keep AUDIT_RETENTION_DAYS (default 90)
  permctl audit-cleanup --keep-days 30
  permctl audit-cleanup --before 2024-01-01   # --before wins over --keep-days`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer shutdown()

		params := services.CleanupParams{}
		if beforeDate != "" {
			t, err := time.ParseInLocation("2006-01-02", beforeDate, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --before %q, expected YYYY-MM-DD", beforeDate)
			}
			params.BeforeDate = &t
		}
		if cmd.Flags().Changed("keep-days") {
			params.KeepDays = &keepDays
		} else if cfg.Audit.RetentionDays > 0 {
			days := cfg.Audit.RetentionDays
			params.KeepDays = &days
		}

		audit := services.NewAuditService(db, metrics.NewNop())
		result, err := audit.Cleanup(cmd.Context(), services.SystemActor, params)
		if err != nil {
			return err
		}
		cmd.Printf("[OK] %s (cutoff %s)\n", result.Message, result.Cutoff.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCleanupCmd)

	auditCleanupCmd.Flags().IntVar(&keepDays, "keep-days", 0, "Keep logs from the last N days")
	auditCleanupCmd.Flags().StringVar(&beforeDate, "before", "", "Delete logs created before this date (YYYY-MM-DD)")
}
