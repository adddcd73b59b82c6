package database

import (
	"fmt"
	"strconv"

	"imovel-monitor/internal/config"
)

// Open connects to the configured store and makes sure its schema exists
func Open(cfg config.DatabaseConfig) (Repository, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil

	case "postgres":
		pg := cfg.Postgres
		db, err := NewDB(pg.Host, strconv.Itoa(pg.Port), pg.User, pg.Password, pg.Database, pg.SSLMode)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := db.InitSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize PostgreSQL schema: %w", err)
		}
		return db, nil

	case "", "mysql":
		my := cfg.MySQL
		db, err := NewGormDB(my.Host, strconv.Itoa(my.Port), my.User, my.Password, my.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		if err := db.InitSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize MySQL schema: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown database type %q", cfg.Type)
}
