package db

import (
	"database/sql"
	"livestock/internal/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func NewPostgresDB(cfg *config.PostgresConfig, log *zap.Logger) (*sql.DB, error) {
	log.Info("connecting db")
	db, err := sql.Open("postgres", cfg.Conn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
