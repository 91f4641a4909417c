package db

import (
	"fmt"

	"github.com/kasuganosora/battleplanner/config"
	dbmysql "github.com/kasuganosora/battleplanner/db/mysql"
	dbsqlite "github.com/kasuganosora/battleplanner/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite, "":
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, dbmysql.Pool{MaxOpen: cfg.MySQLMaxOpen, MaxIdle: cfg.MySQLMaxIdle, MaxLife: cfg.MySQLMaxLife})
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
