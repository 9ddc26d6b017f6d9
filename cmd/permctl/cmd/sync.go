package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"salesadmin/internal/database"
	"salesadmin/internal/metrics"
	"salesadmin/internal/router"
	"salesadmin/internal/services"
	"salesadmin/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var syncCmd = &cobra.Command{
	Use:   "sync-permissions",
	Short: "Sync button permissions from the registered API routes",
	Long: `Scan every route registered by the server router and create or update one
button permission per (method, path). Buttons whose route disappeared are
marked absent, never deleted.

When Redis is enabled the run holds the "permission-sync" lock, so a
concurrent server startup sync is skipped instead of duplicated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer shutdown()

		engine, err := buildEngine(cfg, db)
		if err != nil {
			return err
		}

		identifiers := services.NewIdentifierGenerator(cfg.Authz.APIRootPrefix)
		syncService := services.NewPermissionSyncService(db, identifiers, redisLocker(), cfg.Permission.SyncLockTTL, metrics.NewNop())
		report, err := syncService.ScanAndSync(cmd.Context(), router.RouteSurface(engine))
		if err != nil {
			return err
		}
		if report.Skipped {
			cmd.Println("[SKIP] Another instance is syncing permissions")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tIDENTIFIER\tCREATED")
		for _, p := range report.Permissions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", p.Method, p.Path, p.Identifier, p.Created)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for _, e := range report.Errors {
			cmd.PrintErrf("[FAIL] %s %s: %s\n", e.Method, e.Path, e.Error)
		}
		for _, c := range report.Collisions {
			cmd.PrintErrf("[WARN] %s %s shares identifier %s with %s\n", c.Method, c.Path, c.Identifier, c.ConflictsWith)
		}
		cmd.Printf("created=%d updated=%d absent=%d failed=%d collisions=%d\n",
			report.Created, report.Updated, report.MarkedAbsent, len(report.Errors), len(report.Collisions))
		return nil
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List API routes and their derived button identifiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer shutdown()

		engine, err := buildEngine(cfg, db)
		if err != nil {
			return err
		}

		identifiers := services.NewIdentifierGenerator(cfg.Authz.APIRootPrefix)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tIDENTIFIER\tNAME")
		for _, route := range router.RouteSurface(engine) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", route.Method, route.Path,
				identifiers.Identifier(route.Method, route.Path),
				identifiers.Name(route.Method, route.Path))
		}
		return w.Flush()
	},
}

// buildEngine 构造与服务端相同的路由，只用于读取路由表
func buildEngine(cfg *config.Config, db *gorm.DB) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	return router.SetupRouter(router.OptionsFromConfig(cfg, db, metrics.NewNop(), nil))
}

// redisLocker 未启用Redis时返回 nil 接口
func redisLocker() services.Locker {
	if l := database.GetRedisLocker(); l != nil {
		if err := l.Ping(context.Background()); err == nil {
			return l
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(routesCmd)
}
