package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"strata/internal/config"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store manages orchestration persistence backed by sqlite or postgres.
type Store struct {
	db     *sqlx.DB
	driver string
	bind   int
}

const (
	sqliteBusyCode        = 5
	txRetryAttempts       = 5
	txRetryInitialBackoff = 10 * time.Millisecond
	txRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// isRetryable reports contention errors that a fresh transaction may clear:
// sqlite busy/locked and postgres serialization or deadlock failures.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case "40001", "40P01":
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnContention(ctx context.Context, op func() error) error {
	delay := txRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < txRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == txRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= txRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func bindTypeFor(driver string) int {
	if driver == DriverPostgres {
		return sqlx.DOLLAR
	}
	return sqlx.QUESTION
}

// sqliteDSN builds a connection string carrying the pragmas every pooled
// connection needs. journal_mode is database-wide but foreign_keys and
// busy_timeout are per-connection, so they must ride the DSN.
func sqliteDSN(path string) string {
	values := url.Values{}
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "foreign_keys(1)")
	values.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + values.Encode()
}

// Open initializes or connects to the orchestration database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	var (
		db  *sqlx.DB
		err error
	)
	driver := cfg.Database.Driver
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		db, err = sqlx.Open("sqlite", sqliteDSN(cfg.Database.Path))
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
	case DriverPostgres:
		db, err = sqlx.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres db: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(time.Hour)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	store := &Store{db: db, driver: driver, bind: bindTypeFor(driver)}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ensureContext(ctx))
}

// Driver returns the active driver name.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) rebind(query string) string {
	return sqlx.Rebind(s.bind, query)
}

// Tx exposes record operations bound to one store transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
	bind   int
}

func (t *Tx) rebind(query string) string {
	return sqlx.Rebind(t.bind, query)
}

// forUpdate returns the row lock clause where the driver supports one.
// Sqlite's single-writer transactions serialize writers without it.
func (t *Tx) forUpdate() string {
	if t.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (t *Tx) skipLocked() string {
	if t.driver == DriverPostgres {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}

// WithTx runs fn inside a transaction, retrying the whole body a bounded
// number of times on contention errors. fn may therefore run more than once;
// it must not carry side effects beyond its transaction writes.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnContention(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		wrapped := &Tx{tx: tx, driver: s.driver, bind: s.bind}
		if err := fn(wrapped); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetJob loads a job by request identifier without locking it.
func (s *Store) GetJob(ctx context.Context, requestID string) (*Job, error) {
	var job *Job
	err := s.WithTx(ctx, func(tx *Tx) error {
		loaded, err := tx.JobByRequestID(ctx, requestID, false)
		if err != nil {
			return err
		}
		job = loaded
		return nil
	})
	return job, err
}

// GetWorkItem loads a work item by identifier.
func (s *Store) GetWorkItem(ctx context.Context, id int64) (*WorkItem, error) {
	var item *WorkItem
	err := s.WithTx(ctx, func(tx *Tx) error {
		loaded, err := tx.WorkItemByID(ctx, id, false)
		if err != nil {
			return err
		}
		item = loaded
		return nil
	})
	return item, err
}
