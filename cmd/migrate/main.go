package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/fleetbill/backend/internal/infrastructure/config"
	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/fleetbill/backend/internal/infrastructure/migration"
	"github.com/fleetbill/backend/migrations"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	migrationsPath string
	logLevel       string
	log            *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the lettrage database schema",
	Long: `Applies the versioned SQL schema of the payment allocation ledger.

Without --path the schema compiled into the binary is used. Database
settings come from the LETTRAGE_DATABASE_* environment variables or
config.toml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logger.New(&logger.Config{
			Level:      logLevel,
			Format:     "console",
			Output:     "stdout",
			TimeFormat: "2006-01-02 15:04:05",
			Service:    "lettrage-migrate",
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migration.Migrator) error { return m.Up() })
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ok, _ := cmd.Flags().GetBool("confirm"); !ok {
			return fmt.Errorf("refusing to roll back the whole schema without --confirm")
		}
		return withMigrator(func(m *migration.Migrator) error { return m.Down() })
	},
}

var stepCmd = &cobra.Command{
	Use:     "step <n>",
	Short:   "Apply n migrations (negative rolls back)",
	Example: "  migrate step -- -1",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return withMigrator(func(m *migration.Migrator) error { return m.Steps(n) })
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migration.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if version == 0 {
				log.Info("No migrations applied")
				return nil
			}
			log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
			return nil
		})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Mark the schema as being at version without running anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return withMigrator(func(m *migration.Migrator) error { return m.Force(version) })
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name> [description]",
	Short: "Create the next numbered migration pair",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := migrationsPath
		if dir == "" {
			dir = "migrations"
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		mf, err := migration.CreateMigration(dir, args[0], description)
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.Uint("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var fsys fs.FS = migrations.FS
		if migrationsPath != "" {
			fsys = os.DirFS(migrationsPath)
		}
		list, err := migration.ListMigrations(fsys)
		if err != nil {
			return err
		}
		for _, m := range list {
			fmt.Fprintln(cmd.OutOrStdout(), " -", m)
		}
		log.Info("Migrations listed", zap.Int("count", len(list)))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "migrations directory (default: embedded schema)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	downCmd.Flags().Bool("confirm", false, "confirm rolling back every migration")

	rootCmd.AddCommand(upCmd, downCmd, stepCmd, versionCmd, forceCmd, createCmd, listCmd)
}

func withMigrator(fn func(m *migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	var m *migration.Migrator
	if migrationsPath != "" {
		m, err = migration.NewFromDir(db, migrationsPath, log)
	} else {
		m, err = migration.NewEmbedded(db, log)
	}
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(m)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
