package postgres

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/CareCall/internal/application/config"
)

// NewPostgres открывает пул через pgx stdlib
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	dbCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(dbCtx, "pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	slog.Info(
		"connected to postgres",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return db, nil
}
