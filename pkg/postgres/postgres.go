// Package postgres opens the connection pools the services use.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

const connectAttempts = 30

// Options describes one database.
type Options struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// URL is the pgx connection string.
func (o Options) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&pool_max_conns=25&pool_min_conns=5",
		o.User, o.Password, o.Host, o.Port, o.Name,
	)
}

// DSN is the lib/pq connection string.
func (o Options) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		o.Host, o.Port, o.User, o.Password, o.Name,
	)
}

// Connect opens a pgx pool and waits until the database answers.
func Connect(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(opts.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	for i := 0; i < connectAttempts; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Printf("✅ Connected to %s with connection pool", opts.Name)
			return pool, nil
		}
		log.Printf("⏳ Waiting for database %s... (%d/%d)", opts.Name, i+1, connectAttempts)
		time.Sleep(1 * time.Second)
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to %s after %d attempts", opts.Name, connectAttempts)
}

// OpenSQL opens a database/sql handle on the lib/pq driver. DTM branch
// barriers run on *sql.Tx, so services taking part in DTM sagas keep one of
// these next to their pgx pool.
func OpenSQL(opts Options) (*sql.DB, error) {
	db, err := sql.Open("postgres", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
