package cmd

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-filedrop/config"

	_ "github.com/go-sql-driver/mysql"
)

// openDatabase loads configuration and returns a pinged connection pool for
// the one-shot admin commands.
func openDatabase(ctx context.Context) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err = configureLogging(cfg); err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return cfg, db, nil
}
