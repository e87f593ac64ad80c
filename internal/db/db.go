package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func InitDB(conn string) (*sqlx.DB, error) {
	DB, err := sqlx.Connect("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := DB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	Migrations(DB)

	logrus.Info("database connection established")

	return DB, nil
}

func Migrations(db *sqlx.DB) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		logrus.Fatalf("MIGRATIONS: failed to create postgres driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://internal/db/migrations",
		"postgres",
		driver,
	)
	if err != nil {
		logrus.Fatalf("MIGRATIONS: failed to create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logrus.Fatalf("MIGRATIONS: failed to run migrations: %v", err)
	}

	logrus.Info("migrations applied")
}
