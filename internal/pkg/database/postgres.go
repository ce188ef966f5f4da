package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Database records the properties the bridge exposes and the readings it
// observes. The schema is owned by the migrations folder.
type Database struct {
	pool *pgxpool.Pool
}

func NewDatabase(pool *pgxpool.Pool) *Database {
	return &Database{
		pool: pool,
	}
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*Database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewDatabase(pool), nil
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}
