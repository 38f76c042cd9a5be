// Package pgtest boots a throwaway Postgres with the repo migrations for integration suites.
package pgtest

import (
	"context"
	"errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type Suite struct {
	suite.Suite
	Container *postgres.PostgresContainer
	DB        *pgxpool.Pool
	Ctx       context.Context
}

// SetupDatabase starts the container and applies migrations from migrationsDir.
func (s *Suite) SetupDatabase(migrationsDir string) {
	if testing.Short() {
		s.T().Skip("integration suite skipped in -short mode")
	}
	s.Ctx = context.Background()

	var err error
	s.Container, err = postgres.Run(s.Ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("orders_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)

	dsn, err := s.Container.ConnectionString(s.Ctx, "sslmode=disable")
	s.Require().NoError(err)

	abs, err := filepath.Abs(migrationsDir)
	s.Require().NoError(err)
	m, err := migrate.New("file://"+abs, dsn)
	s.Require().NoError(err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		s.Require().NoError(err)
	}

	s.DB, err = pgxpool.New(s.Ctx, dsn)
	s.Require().NoError(err)
}

func (s *Suite) TearDownDatabase() {
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Container != nil {
		if err := s.Container.Terminate(s.Ctx); err != nil {
			s.T().Logf("terminate postgres container: %v", err)
		}
	}
}

// Truncate empties tables and resets their sequences.
func (s *Suite) Truncate(tables ...string) {
	_, err := s.DB.Exec(s.Ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
	s.Require().NoError(err)
}

// SeedProduct inserts a product and returns its id.
func (s *Suite) SeedProduct(name, price string, stock int) int64 {
	var id int64
	err := s.DB.QueryRow(s.Ctx,
		`INSERT INTO products (seller_id, name, price, stock) VALUES ('seller-1', $1, $2::numeric, $3) RETURNING id`,
		name, price, stock,
	).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *Suite) Stock(productID int64) int {
	var n int
	s.Require().NoError(s.DB.QueryRow(s.Ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&n))
	return n
}
