package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/ehr/carewizard/internal/domain/careplan"
	"github.com/ehr/carewizard/internal/platform/auth"
	"github.com/ehr/carewizard/internal/platform/db"
	"github.com/ehr/carewizard/internal/platform/draft"
	"github.com/ehr/carewizard/internal/platform/middleware"
	"github.com/ehr/carewizard/migrations"
)

const (
	version        = "0.1.0"
	requestTimeout = 30 * time.Second
	uploadLimit    = "12M"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "carewizard-server",
		Short:        "Care plan wizard API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(draftsCmd())
	root.AddCommand(fillCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the care plan wizard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func draftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Inspect and manage saved wizard drafts",
	}
	cmd.PersistentFlags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved drafts for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(cmd, func(ctx context.Context, a *app, tenant string) error {
				entries, total, err := a.svc.ListDrafts(ctx, tenant, limit, 0)
				if err != nil {
					return err
				}
				printDrafts(cmd.OutOrStdout(), entries, total)
				return nil
			})
		},
	}
	listCmd.Flags().Int("limit", 50, "Maximum number of drafts to list")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <client-id>",
		Short: "Print a client's draft as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, tenant string) error {
				st, err := a.svc.View(ctx, tenant, args[0])
				if err != nil {
					return err
				}
				if !st.Restored {
					return fmt.Errorf("no draft saved for client %s", args[0])
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <client-id>",
		Short: "Delete a client's draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, tenant string) error {
				if err := a.svc.Clear(ctx, tenant, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared draft %s\n", careplan.DraftKey(tenant, args[0]))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reseal",
		Short: "Re-encrypt drafts sealed with a retired HIPAA key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, tenant string) error {
				if a.sealed == nil {
					return fmt.Errorf("HIPAA_ENCRYPTION_KEY is not configured")
				}
				n, err := a.sealed.Reseal(ctx, tenant+"/")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resealed %d draft(s).\n", n)
				return nil
			})
		},
	})

	return cmd
}

// withApp builds the stack for a one-shot command and resolves --tenant.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, tenant string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		tenant = cfg.DefaultTenant
	}
	if !db.ValidTenantID(tenant) {
		return fmt.Errorf("invalid tenant identifier %q", tenant)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, tenant)
}

func printDrafts(w io.Writer, entries []draft.Entry, total int) {
	fmt.Fprintf(w, "%-48s %-10s %s\n", "KEY", "SIZE", "UPDATED AT")
	for _, e := range entries {
		fmt.Fprintf(w, "%-48s %-10d %s\n", e.Key, e.Size, e.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%d of %d draft(s)\n", len(entries), total)
}

// skipTimeout exempts requests that may wait on the submission backend or
// stream an upload.
func skipTimeout(c echo.Context) bool {
	p := c.Request().URL.Path
	return strings.HasSuffix(p, "/wizard/advance") || strings.Contains(p, "/wizard/attachments/")
}

func newServer(a *app) *echo.Echo {
	cfg := a.cfg
	logger := a.log

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, uploadLimit))
	e.Use(middleware.RequestTimeout(requestTimeout, skipTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept-Language", "X-Request-ID", "X-Tenant-ID"},
	}))

	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	}
	e.Use(tenantMiddleware(cfg.DefaultTenant))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":   "ok",
			"version":  version,
			"sessions": a.sessions.Len(),
		})
	})
	e.GET("/health/db", db.HealthHandler(a.checks...))

	apiV1 := e.Group("/api/v1")
	careplan.NewHandler(a.svc, a.blobs).RegisterRoutes(apiV1)
	return e
}

// tenantMiddleware resolves the tenant everywhere except the public health
// routes.
func tenantMiddleware(defaultTenant string) echo.MiddlewareFunc {
	resolve := db.TenantMiddleware(defaultTenant)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withTenant := resolve(next)
		return func(c echo.Context) error {
			if auth.AuthSkipper(c) {
				return next(c)
			}
			return withTenant(c)
		}
	}
}

func runServer() error {
	cfg, err := loadConfig()
	logger := newLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize care plan wizard")
	}
	defer a.Close()

	if a.pool != nil {
		count, err := db.NewMigrator(a.pool, migrations.FS).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to apply migrations")
		}
		if count > 0 {
			logger.Info().Int("applied", count).Msg("migrations applied")
		}
	}

	go a.sessions.Run(ctx)

	e := newServer(a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	stop()
	logger.Info().Msg("server stopped")
	return nil
}
