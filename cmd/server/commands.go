package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-lingo-backend/internal/config"
	httpapi "github.com/tbourn/go-lingo-backend/internal/http"
	"github.com/tbourn/go-lingo-backend/internal/observability"
	"github.com/tbourn/go-lingo-backend/internal/repo"
	"github.com/tbourn/go-lingo-backend/internal/streamchat"
	"github.com/tbourn/go-lingo-backend/internal/sysutil"
)

const shutdownTimeout = 10 * time.Second

// rootOptions is shared by every subcommand; PersistentPreRunE fills cfg
// and log.
type rootOptions struct {
	envFile string
	cfg     config.Config
	log     zerolog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "lingo",
		Short:         "Language-exchange API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the environment (default .env if present)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

// load reads the dotenv file, then the environment, then sets up logging.
// Variables already set in the environment win over the file.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "config:", err)
		return err
	}
	o.cfg = cfg
	o.log = sysutil.SetupLogging(cmd.OutOrStdout(), cfg.LogLevel, cfg.LogPretty)
	return nil
}

func (o *rootOptions) dsn() string {
	if o.cfg.DBDriver == "postgres" {
		return o.cfg.DatabaseURL
	}
	return o.cfg.DBPath
}

// openDB opens and migrates the configured database. The returned func
// closes the pool.
func (o *rootOptions) openDB() (*gorm.DB, func(), error) {
	db, err := repo.Open(o.cfg.DBDriver, o.dsn())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", o.cfg.DBDriver, err)
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, closeDB, nil
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, closeDB, err := opts.openDB()
			if err != nil {
				opts.log.Error().Err(err).Msg("migration failed")
				return err
			}
			defer closeDB()
			opts.log.Info().Str("driver", opts.cfg.DBDriver).Msg("migrations applied")
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg, log := opts.cfg, opts.log

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, closeDB, err := opts.openDB()
	if err != nil {
		return err
	}
	defer closeDB()
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return fmt.Errorf("gorm tracing: %w", err)
		}
	}

	deps := httpapi.Deps{Chat: streamchat.New(cfg.Stream)}
	if cfg.RateBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable; requests pass until it recovers")
		}
		deps.Redis = rdb
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, deps)

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("mode", cfg.GinMode).Bool("chat", cfg.Stream.Enabled()).Msg("server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	log.Info().Msg("server stopped")
	return nil
}
