package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/lumensite/lumen/internal/server/accesslog"
	"github.com/lumensite/lumen/internal/server/auth"
	"github.com/lumensite/lumen/internal/server/upload"
)

type Services struct {
	Upload    *upload.UploadService
	Auth      *auth.AuthService
	AccessLog *accesslog.AccessLogger
}

// NewServices builds the services. db may be nil when the memory session store is configured.
func NewServices(ctx context.Context, config *Config, db *sqlx.DB) (*Services, error) {
	store, err := upload.NewSessionStore(config.Upload.SessionStore, db)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	chunks, publisher, err := upload.NewStorage(ctx, &config.Upload)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create upload storage: %w", err)
	}

	uploadSvc := upload.NewUploadService(&config.Upload, store, chunks, publisher,
		upload.WithPublicURL(config.HTTP.BaseURL()))

	authSvc := auth.NewAuthService(&config.Auth)

	accessLogger, err := accesslog.New(filepath.Join(config.LogDir, "access"), slog.Default())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create access logger: %w", err)
	}

	return &Services{
		Upload:    uploadSvc,
		Auth:      authSvc,
		AccessLog: accessLogger,
	}, nil
}

func (s *Services) Start(ctx context.Context) error {
	if err := s.Upload.Start(ctx); err != nil {
		return fmt.Errorf("start upload service: %w", err)
	}
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	if err := s.Upload.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop upload service: %w", err)
	}

	if err := s.AccessLog.Close(); err != nil {
		return fmt.Errorf("close access logger: %w", err)
	}

	return nil
}
