package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/buildtall-systems/printq/internal/logging"
	"github.com/buildtall-systems/printq/internal/realtime"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Publisher fans committed changes out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, c realtime.Change) error
}

// DB is the persistent record store. Every committed write to orders,
// inventory or service_status is published as a change after commit, in
// commit order.
type DB struct {
	*sql.DB

	publisher Publisher
	logger    *slog.Logger
	commitMu  sync.Mutex
}

// Option configures a DB.
type Option func(*DB)

func WithPublisher(p Publisher) Option {
	return func(db *DB) { db.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = l }
}

func Open(dbPath string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := sqlDB.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	db := &DB{DB: sqlDB}
	for _, opt := range opts {
		opt(db)
	}
	db.logger = logging.OrDiscard(db.logger)
	return db, nil
}

// SetPublisher replaces the change publisher.
func (db *DB) SetPublisher(p Publisher) {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()
	db.publisher = p
}

func (db *DB) Migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// pending describes the change a transaction commits.
type pending struct {
	collection string
	kind       realtime.Kind
	id         string
	record     any
}

// mutate runs fn in a transaction and publishes the change it returns once
// the transaction has committed. Writes are serialized so publication order
// matches commit order.
func (db *DB) mutate(ctx context.Context, fn func(tx *sql.Tx) (*pending, error)) error {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := fn(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if p != nil {
		db.publish(context.WithoutCancel(ctx), *p)
	}
	return nil
}

// publish never fails the write: the change is committed either way, and
// subscribers recover missed changes by re-fetching.
func (db *DB) publish(ctx context.Context, p pending) {
	if db.publisher == nil {
		return
	}
	log := db.logger.With("collection", p.collection, "record_id", p.id, "kind", p.kind)

	change, err := realtime.NewChange(p.collection, p.kind, p.id, p.record)
	if err != nil {
		log.Error("encoding change", "error", err)
		return
	}
	if err := db.publisher.Publish(ctx, change); err != nil {
		log.Warn("publishing change", "error", err)
	}
}
