package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
)

// Handle is the pooled connection the Executor hands to each operation.
// *sqlx.DB satisfies it.
type Handle interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
	Rebind(query string) string
	Close() error
}

// Opener builds a fresh Handle.
type Opener func(ctx context.Context) (Handle, error)

type DatabaseConfig struct {
	Driver          string
	Source          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SQLXOpener opens an *sqlx.DB pool for cfg. The pool is pinged before it is returned.
func SQLXOpener(cfg DatabaseConfig) Opener {
	return func(ctx context.Context) (Handle, error) {
		driver := cfg.Driver
		if driver == "" {
			driver = "pgx"
		}

		db, err := sqlx.Open(driver, cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to open db connection: %w", err)
		}

		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return db, nil
	}
}

type current struct {
	h Handle
}

// Executor runs queries against one process-wide pooled handle. A transient
// transport fault discards the handle and retries the operation exactly once on a
// freshly opened one.
type Executor struct {
	open   Opener
	handle atomic.Pointer[current]
	logger *slog.Logger

	rebuilds atomic.Int64
}

func NewExecutor(open Opener, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		open:   open,
		logger: logger,
	}
}

// Do runs op against the current handle. A transport fault on the first
// attempt, whether from opening the handle or from op itself, gets one retry
// on a fresh handle.
func (e *Executor) Do(ctx context.Context, op func(h Handle) error) error {
	cur, err := e.acquire(ctx)
	if err == nil {
		err = op(cur.h)
	}
	if err == nil || passThrough(err) {
		return err
	}

	kind := Classify(err)
	if !kind.Retryable() {
		return &StorageError{Kind: kind, Err: err}
	}

	e.logger.Warn("transient storage fault, rebuilding connection pool", "kind", kind, "error", err)
	if cur != nil {
		e.discard(cur)
	}

	cur, err = e.acquire(ctx)
	if err != nil {
		return e.fail(err)
	}

	err = op(cur.h)
	if err == nil {
		return nil
	}
	if passThrough(err) {
		return err
	}

	kind = Classify(err)
	e.logger.Error("storage operation failed after retry", "kind", kind, "error", err)
	return &StorageError{Kind: kind, Err: err}
}

func (e *Executor) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return e.Do(ctx, func(h Handle) error {
		return h.GetContext(ctx, dest, h.Rebind(query), args...)
	})
}

func (e *Executor) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return e.Do(ctx, func(h Handle) error {
		return h.SelectContext(ctx, dest, h.Rebind(query), args...)
	})
}

func (e *Executor) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := e.Do(ctx, func(h Handle) error {
		var execErr error
		res, execErr = h.ExecContext(ctx, h.Rebind(query), args...)
		return execErr
	})
	return res, err
}

func (e *Executor) Ping(ctx context.Context) error {
	return e.Do(ctx, func(h Handle) error {
		return h.PingContext(ctx)
	})
}

// Rebuilds returns how many times the handle has been discarded after a transient fault.
func (e *Executor) Rebuilds() int64 {
	return e.rebuilds.Load()
}

// Close releases the current handle. A later call reopens lazily.
func (e *Executor) Close() error {
	cur := e.handle.Swap(nil)
	if cur == nil {
		return nil
	}
	return cur.h.Close()
}

func (e *Executor) acquire(ctx context.Context) (*current, error) {
	if cur := e.handle.Load(); cur != nil {
		return cur, nil
	}

	h, err := e.open(ctx)
	if err != nil {
		return nil, err
	}

	fresh := &current{h: h}
	for {
		if e.handle.CompareAndSwap(nil, fresh) {
			return fresh, nil
		}
		// another caller installed a handle first
		if cur := e.handle.Load(); cur != nil {
			_ = h.Close()
			return cur, nil
		}
	}
}

func (e *Executor) discard(cur *current) {
	if !e.handle.CompareAndSwap(cur, nil) {
		return
	}
	e.rebuilds.Add(1)
	if err := cur.h.Close(); err != nil {
		e.logger.Debug("closing broken connection pool", "error", err)
	}
}

func (e *Executor) fail(err error) error {
	if passThrough(err) {
		return err
	}
	return &StorageError{Kind: Classify(err), Err: err}
}
