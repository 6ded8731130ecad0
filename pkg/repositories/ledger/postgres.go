package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fadedpez/wingo/pkg/db/migrations"
	_ "github.com/lib/pq"
)

// PostgresRepository implements Repository on PostgreSQL. Wallet and bet rows
// are locked with SELECT ... FOR UPDATE inside each transaction.
type PostgresRepository struct {
	*sqlStore
}

// NewPostgresRepository connects to dsn and applies pending migrations
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	migrator := migrations.NewMigrator(db, migrations.DialectPostgres)
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error applying migrations: %w", err)
	}

	return &PostgresRepository{
		sqlStore: &sqlStore{db: db, dialect: migrations.DialectPostgres},
	}, nil
}
