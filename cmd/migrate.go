package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quiverkb/quiver/db"
	"github.com/quiverkb/quiver/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Applies the embedded SQL migrations to the configured PostgreSQL
database. The serve command also migrates at startup; this command exists for
running migrations separately, e.g. in a deploy step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}
