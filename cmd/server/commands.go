package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"gitea.jw6.us/james/crmdesk/internal/auth"
	"gitea.jw6.us/james/crmdesk/internal/config"
	httpserver "gitea.jw6.us/james/crmdesk/internal/http"
	"gitea.jw6.us/james/crmdesk/internal/logging"
	"gitea.jw6.us/james/crmdesk/internal/store"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "crmd",
		Short:         "Multi-tenant CRM backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	root.AddCommand(a.serveCmd(), a.storeCmd(), a.sessionsCmd())
	return root
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and prepare the document store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the document if missing and add any missing collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			d, err := st.Load(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "document ready: %d users, %d sessions, %d contacts, %d leads, %d tasks, %d events, %d documents, %d emails\n",
				len(d.Users), len(d.Sessions), len(d.Contacts), len(d.Leads), len(d.Tasks), len(d.Events), len(d.Documents), len(d.Emails))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Driver != config.StoreDriverPostgres {
				return fmt.Errorf("migrations only apply to the %s store (APP_STORE_DRIVER=%s)", config.StoreDriverPostgres, a.cfg.Store.Driver)
			}
			ctx := cmd.Context()
			pool, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := store.ApplyMigrations(ctx, pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	})
	return cmd
}

func (a *app) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage login sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := a.authService(st).PurgeExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired sessions\n", n)
			return nil
		},
	})
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	a.logger.Info("starting crmdesk server", "store", a.cfg.Store.Driver)

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	// Fail fast on an unreadable document instead of on the first request.
	if _, err := st.Load(ctx); err != nil {
		return err
	}

	router := httpserver.NewRouter(a.cfg, st, a.authService(st), a.logger)
	defer router.Close()

	srv := &http.Server{
		Addr:         a.cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     logging.StdLogger(a.logger, slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (a *app) authService(st *store.Store) *auth.Service {
	return auth.NewService(st, auth.Options{
		SessionTTL: a.cfg.Session.TTL,
		BcryptCost: a.cfg.Auth.BcryptCost,
		Logger:     a.logger,
	})
}

// openStore builds the configured backend. For PostgreSQL it connects and
// applies pending migrations first.
func (a *app) openStore(ctx context.Context) (*store.Store, func(), error) {
	switch a.cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := a.connect(ctx)
		if err != nil {
			return nil, nil, err
		}
		applied, err := store.ApplyMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if len(applied) > 0 {
			a.logger.Info("applied migrations", "migrations", applied)
		}
		backend := store.NewPostgresBackend(pool, a.cfg.Store.DocumentName)
		return store.New(backend, a.logger), pool.Close, nil
	default:
		backend := store.NewFileBackend(a.cfg.Store.DataFile)
		return store.New(backend, a.logger), func() {}, nil
	}
}

func (a *app) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, a.cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}
