package cmd

import (
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/qrave1/CareCall/internal/application/config"
	"github.com/qrave1/CareCall/internal/infra/adapters/postgres/migrations"
)

var migrateDSN string

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|status|redo|version> [args...]",
	Short: "Run call history migrations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogger("INFO", false)

		dsn := migrateDSN
		if dsn == "" {
			pgCfg, err := config.NewPostgres()
			if err != nil {
				return err
			}
			dsn = pgCfg.DSN()
		}

		goose.SetBaseFS(migrations.MigrationsFS)
		goose.SetLogger(gooseLogger{})

		if err := goose.SetDialect("postgres"); err != nil {
			return fmt.Errorf("goose set dialect: %w", err)
		}

		db, err := goose.OpenDBWithDriver("pgx", dsn)
		if err != nil {
			return fmt.Errorf("goose open db: %w", err)
		}
		defer db.Close()

		if err = goose.RunContext(cmd.Context(), args[0], db, ".", args[1:]...); err != nil {
			return fmt.Errorf("goose %s: %w", args[0], err)
		}

		return nil
	},
}

// gooseLogger - вывод goose в общий slog
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}

func (gooseLogger) Fatalf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...), slog.String("component", "goose"))
	os.Exit(1)
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", "", "postgres DSN, overrides POSTGRES_* env")

	rootCmd.AddCommand(migrateCmd)
}
