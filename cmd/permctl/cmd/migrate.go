package cmd

import (
	"salesadmin/internal/database"

	"github.com/spf13/cobra"
)

var withSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the permission tables",
	Long: `Run schema migration for roles, menus, buttons, grants, users and audit logs.

Examples:
  permctl migrate          # migrate only
  permctl migrate --seed   # migrate then seed system roles, menus and the super admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer shutdown()

		if err := database.Migrate(db); err != nil {
			return err
		}
		cmd.Println("[OK] Migration completed")

		if withSeed {
			if err := database.Seed(db, cfg.Admin); err != nil {
				return err
			}
			cmd.Println("[OK] Seed data initialized")
		}
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert system roles, default menus and the super admin (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer shutdown()

		if err := database.Seed(db, cfg.Admin); err != nil {
			return err
		}
		cmd.Println("[OK] Seed data initialized")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)

	migrateCmd.Flags().BoolVar(&withSeed, "seed", false, "Seed system data after migration")
}
