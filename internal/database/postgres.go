package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NowUTC is the clock used for every GORM-managed timestamp.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// GormConfig returns the shared GORM settings used by every dialect.
func GormConfig() *gorm.Config {
	return &gorm.Config{NowFunc: NowUTC}
}

// ConnectPostgres establishes a connection to the PostgreSQL database using the provided DSN.
func ConnectPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return db, nil
}
