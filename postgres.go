package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"forkChan/database"
)

// slowQuery is the duration above which gorm logs a query as slow.
const slowQuery = 200 * time.Millisecond

// DB provides the connection to the postgres database backing the
// documents store.
type DB struct {
	// Object-relational mapping.
	Gorm *gorm.DB
	// Connection settings containing database name, user, port etc.
	Config PostgresConfig
}

// NewDB returns a new instance of DB.
func NewDB(config PostgresConfig) *DB {
	return &DB{Config: config}
}

// Open opens a new database connection and checks that it answers. Gorm
// writes through logrus: every statement in development, only slow
// statements and errors in production.
func Open(ctx context.Context, db *DB, isProd bool) (err error) {
	if db.Config.Host == "" || db.Config.Name == "" {
		return fmt.Errorf("database host and name required")
	}
	level := logger.Info
	if isProd {
		level = logger.Warn
	}
	db.Gorm, err = gorm.Open(postgres.Open(db.Config.ConnectionInfo()), &gorm.Config{
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return fmt.Errorf("err opening gorm postgres connection: %w", err)
	}

	sqlDB, err := db.Gorm.DB()
	if err != nil {
		return err
	}
	if db.Config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.Config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(db.Config.MaxOpenConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("err pinging postgres: %w", err)
	}
	return nil
}

// AutoMigrate creates or updates the documents table. With reset the table
// is dropped first, which deletes every document.
func AutoMigrate(db *DB, reset bool) error {
	if reset {
		log.WithField("db", db.Config.Name).Warn("dropping the documents table")
		return database.DestructiveReset(db.Gorm)
	}
	return database.Migrate(db.Gorm)
}

// Close closes the database connection.
func Close(db *DB) error {
	if db.Gorm == nil {
		return nil
	}
	sqlDb, err := db.Gorm.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
