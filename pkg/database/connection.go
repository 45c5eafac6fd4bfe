package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/wali1264/dokteryaraflain/pkg/config"
	"github.com/wali1264/dokteryaraflain/pkg/logger"
)

// DB represents the remote mirror database connection
type DB struct {
	*sql.DB
	config *config.RemoteConfig
	logger *logger.Logger
}

// NewConnection opens the remote mirror connection. The mirror may be
// unreachable at startup; the connection is not pinged here because the
// engine must come up offline.
func NewConnection(cfg *config.RemoteConfig, log *logger.Logger) (*DB, error) {
	connStr := buildConnectionString(cfg)

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	db := &DB{
		DB:     sqlDB,
		config: cfg,
		logger: log,
	}

	log.WithComponent("database").Info("Remote mirror connection configured")
	return db, nil
}

// buildConnectionString constructs the PostgreSQL connection string
func buildConnectionString(cfg *config.RemoteConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// Health checks the remote connection within the given timeout.
func (db *DB) Health(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return db.PingContext(ctx)
}
