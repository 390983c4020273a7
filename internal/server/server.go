package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lumensite/lumen/internal/db"
	"github.com/lumensite/lumen/internal/server/upload"
	"github.com/lumensite/lumen/internal/version"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	config   *Config
	server   *http.Server
	db       *sqlx.DB
	services *Services
}

func New(ctx context.Context, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var sqlDB *sqlx.DB
	if config.Upload.SessionStore == upload.SessionStoreSQLite {
		var err error
		sqlDB, err = db.NewSqliteDB(db.WithPath(config.Upload.DBPath))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}

	services, err := NewServices(ctx, config, sqlDB)
	if err != nil {
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, err
	}

	handler, err := SetupRoutes(services, config)
	if err != nil {
		services.Shutdown(ctx)
		return nil, err
	}

	return &Server{
		config:   config,
		db:       sqlDB,
		services: services,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 30 * time.Second,
			ReadTimeout:       config.HTTP.ReadTimeout,
		},
	}, nil
}

// Start serves until ctx is canceled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	slog.Info("lumen server start", "version", version.Detailed())
	defer slog.Info("lumen server stop")

	if err := s.services.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.runHttpServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		slog.Info("http server stopped")
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("lumen shutdown signal")
	case serveErr = <-errCh:
		slog.Error("http server error", "error", serveErr)
	}

	if err := s.Stop(context.WithoutCancel(ctx)); err != nil {
		slog.Error("lumen shutdown error", "error", err)
		return errors.Join(serveErr, err)
	}
	return serveErr
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.services.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) runHttpServer() error {
	if s.config.HTTP.TLS() {
		slog.Info("server start https", "addr", s.config.HTTP.Addr, "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
