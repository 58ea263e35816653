package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/termhub/termhub/internal/config"
	"github.com/termhub/termhub/internal/domain/conceptset"
	"github.com/termhub/termhub/internal/platform/db"
	"github.com/termhub/termhub/internal/platform/middleware"
	"github.com/termhub/termhub/internal/platform/openapi"
	"github.com/termhub/termhub/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "termhub-server",
		Short:        "Concept set comparison API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schemaCmd())
	return rootCmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// datasetSource is the configured snapshot loader. pool is set only for the
// postgres source.
type datasetSource struct {
	loader conceptset.Loader
	pool   *pgxpool.Pool
}

func (s *datasetSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func openDatasetSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*datasetSource, error) {
	switch cfg.DatasetSource {
	case config.SourceCSV:
		return &datasetSource{loader: conceptset.NewCSVLoader(cfg.DatasetDir, logger)}, nil
	case config.SourceSQLite:
		return &datasetSource{loader: conceptset.NewSQLiteLoader(cfg.SQLitePath, logger)}, nil
	case config.SourcePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", conceptset.ErrDatasetUnavailable, err)
		}
		loader, err := conceptset.NewPGLoader(pool, cfg.DBSchema, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &datasetSource{loader: loader, pool: pool}, nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q", cfg.DatasetSource)
	}
}

func limitsFromConfig(cfg *config.Config) conceptset.Limits {
	return conceptset.Limits{
		MaxFilteredEdges:  cfg.MaxFilteredEdges,
		MaxTraversalDepth: cfg.MaxTraversalDepth,
		MaxHierarchyRows:  cfg.MaxHierarchyRows,
	}
}

// loadService opens the dataset source and installs the first snapshot.
func loadService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*conceptset.Service, *datasetSource, error) {
	src, err := openDatasetSource(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store := conceptset.NewStore(logger, nil)
	if _, err := store.Reload(ctx, src.loader); err != nil {
		src.Close()
		return nil, nil, err
	}
	return conceptset.NewService(store, limitsFromConfig(cfg), logger), src, nil
}

// =========== serve ===========

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// datasetGauges converts the active snapshot's counts for the metrics
// provider. It returns nil when no snapshot is installed.
func datasetGauges(svc *conceptset.Service) *telemetry.DatasetGauges {
	idx, err := svc.Store().Current()
	if err != nil {
		return nil
	}
	st := idx.Stats()
	return &telemetry.DatasetGauges{
		Concepts:          st.Concepts,
		ConceptSets:       st.ConceptSets,
		Members:           st.Members,
		AncestorEdges:     st.AncestorEdges,
		RelationshipEdges: st.RelationshipEdges,
		LoadedAt:          st.LoadedAt,
	}
}

// newServer builds the echo instance with global middleware and all routes.
// pool may be nil, in which case /health/db is not registered. /metrics is
// registered only when metrics is non-nil and enabled in cfg.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *conceptset.Service, pool *pgxpool.Pool, metrics *telemetry.Provider) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if metrics != nil {
		e.Use(metrics.MetricsMiddleware())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "If-None-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(middleware.SnapshotETag(middleware.SnapshotETagConfig{
		Version: func() string {
			idx, err := svc.Store().Current()
			if err != nil {
				return ""
			}
			return idx.Version()
		},
		ExcludePrefixes: []string{"/health", "/metrics", "/openapi.json", "/docs"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, cfg.DBSchema, conceptset.ReferenceTables()))
	}
	if metrics != nil && cfg.MetricsEnabled {
		e.GET("/metrics", metrics.PrometheusHandler())
	}

	conceptset.NewHandler(svc).RegisterRoutes(e)
	openapi.NewGenerator("termhub API", version, "", conceptset.APIOperations(), conceptset.APISchemas()).RegisterRoutes(e)
	return e
}

// runServer returns configuration and dataset errors to the caller so that
// main can map them to exit codes.
func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	svc, src, err := loadService(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("source", cfg.DatasetSource).Msg("failed to load dataset")
		return err
	}
	defer src.Close()

	metrics := telemetry.NewProvider(cfg.MetricsEnabled)
	metrics.RecordReload(datasetGauges(svc), nil)

	e := newServer(cfg, logger, svc, src.pool, metrics)

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("source", cfg.DatasetSource).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// SIGHUP reloads the snapshot; a failed reload keeps serving the old one.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			logger.Info().Msg("reloading dataset")
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			_, err := svc.Store().Reload(rctx, src.loader)
			cancel()
			if err != nil {
				logger.Error().Err(err).Msg("dataset reload failed, keeping previous snapshot")
			}
			metrics.RecordReload(datasetGauges(svc), err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// =========== validate ===========

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configured dataset and print table counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger()

			svc, src, err := loadService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer src.Close()

			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}

// =========== query ===========

// Query endpoints runnable offline, keyed by their HTTP path.
var queryEndpoints = map[string]func(ctx context.Context, svc *conceptset.Service, ids []int64, format string) (interface{}, error){
	"concept-sets-with-concepts": func(ctx context.Context, svc *conceptset.Service, ids []int64, _ string) (interface{}, error) {
		return svc.ConceptSetsWithConcepts(ctx, ids)
	},
	"concept-sets-by-concept": func(ctx context.Context, svc *conceptset.Service, ids []int64, _ string) (interface{}, error) {
		return svc.ConceptSetsByConcept(ctx, ids)
	},
	"concept-set-overlap-table-data-simple": func(ctx context.Context, svc *conceptset.Service, ids []int64, _ string) (interface{}, error) {
		return svc.OverlapSimple(ctx, ids)
	},
	"concept-set-overlap-table-data-simple-hierarchy": func(ctx context.Context, svc *conceptset.Service, ids []int64, _ string) (interface{}, error) {
		return svc.OverlapSimpleHierarchy(ctx, ids)
	},
	"cr-hierarchy": func(ctx context.Context, svc *conceptset.Service, ids []int64, format string) (interface{}, error) {
		return svc.CRHierarchy(ctx, ids, format)
	},
	"hierarchy-again": func(ctx context.Context, svc *conceptset.Service, ids []int64, _ string) (interface{}, error) {
		return svc.HierarchyAgain(ctx, ids)
	},
	"cset-versions": func(ctx context.Context, svc *conceptset.Service, _ []int64, _ string) (interface{}, error) {
		return svc.CsetVersions(ctx)
	},
}

func queryEndpointNames() []string {
	names := make([]string, 0, len(queryEndpoints))
	for name := range queryEndpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runQuery computes one endpoint's response body.
func runQuery(ctx context.Context, svc *conceptset.Service, endpoint, rawIDs, format string) (interface{}, error) {
	fn, ok := queryEndpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q (one of %v)", endpoint, queryEndpointNames())
	}
	ids, err := conceptset.ParseCodesetIDs(rawIDs)
	if err != nil {
		return nil, err
	}
	return fn(ctx, svc, ids, format)
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <endpoint>",
		Short: "Compute an endpoint response offline and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawIDs, _ := cmd.Flags().GetString("codeset-ids")
			format, _ := cmd.Flags().GetString("format")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := zerolog.New(cmd.ErrOrStderr()).Level(zerolog.WarnLevel)

			svc, src, err := loadService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer src.Close()

			out, err := runQuery(cmd.Context(), svc, args[0], rawIDs, format)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("codeset-ids", "", "Pipe-delimited codeset ids, e.g. 123|456")
	cmd.Flags().String("format", conceptset.FormatDefault, "cr-hierarchy output format (default|xo)")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// =========== migrate / schema ===========

// openWritablePool connects with write access for schema management.
func openWritablePool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, true)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the reference schema",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := cmd.Context()
			cfg, pool, err := openWritablePool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if schema == "" {
				schema = cfg.DBSchema
			}

			logger := newLogger(cfg.Env)
			migrator := db.NewMigrator(pool, dir, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := cmd.Context()
			cfg, pool, err := openWritablePool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if schema == "" {
				schema = cfg.DBSchema
			}

			migrator := db.NewMigrator(pool, dir, newLogger(cfg.Env))
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
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

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the reference schema",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create the reference schema and apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := cmd.Context()
			cfg, pool, err := openWritablePool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if name == "" {
				name = cfg.DBSchema
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Creating schema: %s\n", name)
			if err := db.CreateSchema(ctx, pool, name, dir, newLogger(cfg.Env)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Schema name (defaults to DB_SCHEMA)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(createCmd)

	return cmd
}

// exitCode maps a command error to a process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, conceptset.ErrDatasetUnavailable):
		return 2
	default:
		return 1
	}
}
