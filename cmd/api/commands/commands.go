package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osamaflash/catalog/internal/application/services"
	"github.com/osamaflash/catalog/internal/infrastructure/config"
	"github.com/osamaflash/catalog/internal/infrastructure/database"
	"github.com/osamaflash/catalog/internal/infrastructure/logger"
	"github.com/osamaflash/catalog/internal/infrastructure/server"
)

// Build information, set with -ldflags at release time
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "development"
)

// NewRootCommand assembles the catalog CLI
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "catalog",
		Short:         "File download catalog server",
		Long:          `catalog serves a small file download catalog: items, site statistics and site configuration kept as three JSON documents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (yaml, json or toml)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(NewServeCommand(loadConfig))
	rootCmd.AddCommand(NewMigrateCommand(loadConfig))
	rootCmd.AddCommand(NewAdminCommand(loadConfig))
	rootCmd.AddCommand(NewStatsCommand(loadConfig))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

type configLoader func() (*config.Config, error)

// NewServeCommand creates the serve command
func NewServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the catalog API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand(load configLoader) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the documents table used by the postgres store driver (up, down, version)",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), load, func(db *database.DB) error {
				applied, err := db.MigrateUp()
				if err != nil {
					return err
				}
				printMigrationResult(cmd, "up", applied)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), load, func(db *database.DB) error {
				applied, err := db.MigrateDown()
				if err != nil {
					return err
				}
				printMigrationResult(cmd, "down", applied)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), load, func(db *database.DB) error {
				version, dirty, err := db.MigrationVersion()
				if err != nil {
					return fmt.Errorf("failed to get migration version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
				fmt.Fprintf(cmd.OutOrStdout(), "Dirty: %t\n", dirty)
				return nil
			})
		},
	})

	return migrateCmd
}

// NewAdminCommand creates the admin management command
func NewAdminCommand(load configLoader) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin account commands",
	}

	setPasswordCmd := &cobra.Command{
		Use:   "set-password",
		Short: "Set the admin password stored in the config document",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			hash, _ := cmd.Flags().GetBool("hash")

			if password == "" {
				return errors.New("--password is required")
			}

			cfg, err := load()
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), cfg, func(app *application) error {
				if err := app.admin.SetPassword(cmd.Context(), password, hash); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Admin password updated")
				return nil
			})
		},
	}
	setPasswordCmd.Flags().String("password", "", "New admin password")
	setPasswordCmd.Flags().Bool("hash", false, "Store a bcrypt hash instead of the plain password")

	adminCmd.AddCommand(setPasswordCmd)
	return adminCmd
}

// NewStatsCommand creates the stats command
func NewStatsCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print site counters and per-item downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), cfg, func(app *application) error {
				snapshot, err := app.catalog.List(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Visitors:        %d\n", snapshot.Stats.Visitors)
				fmt.Fprintf(out, "Total downloads: %d\n", snapshot.Stats.TotalDownloads)
				fmt.Fprintf(out, "Items:           %d\n", len(snapshot.Items))
				for _, item := range snapshot.Items {
					fmt.Fprintf(out, "  %-12s %-8s %6d downloads  %.2f (%d votes)  %s\n",
						item.ID, item.Type, item.Downloads, item.Rating, item.RatingCount, item.Name)
				}
				return nil
			})
		},
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print catalog version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "catalog %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Build Date: %s\n", BuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "Git Commit: %s\n", GitCommit)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := server.New(cfg, store, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if cfg.App.IsProduction() && !cfg.Security.RequireAdminToken {
		appLogger.Warnw("Admin actions are not token protected; set security.require_admin_token")
	}

	appLogger.Infow("Starting catalog API server",
		"port", cfg.Server.Port,
		"environment", cfg.App.Environment,
		"store", cfg.Store.Driver,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.GetAddr())
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	appLogger.Info("Server stopped")

	return nil
}

// application bundles the services a one-shot command needs
type application struct {
	catalog *services.CatalogService
	admin   *services.AdminService
}

func withStore(ctx context.Context, cfg *config.Config, fn func(*application) error) error {
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	store, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(&application{
		catalog: services.NewCatalogService(store, nil, appLogger),
		admin:   services.NewAdminService(store, cfg.Security, appLogger),
	})
}

func withDatabase(ctx context.Context, load configLoader, fn func(*database.DB) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	return fn(db)
}

func printMigrationResult(cmd *cobra.Command, direction string, applied bool) {
	if !applied {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations to run")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migration %s completed successfully\n", direction)
}
