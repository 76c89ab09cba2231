package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
	"github.com/fathomdata/sqlmux/pkg/dialect"
	"github.com/fathomdata/sqlmux/pkg/sqlcheck"
)

// Target names where a session binds: which engine, and optionally which
// schema its SQL is qualified with. Zero value means the default engine with
// no schema qualification.
type Target struct {
	DB     string
	Schema string
}

// Session is one transaction against one engine. Sessions are not safe for
// concurrent use; each belongs to the goroutine that opened it.
type Session struct {
	id      uuid.UUID
	tx      *sql.Tx
	schema  string
	dialect dialect.Dialect
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewSession begins a transaction on the targeted engine using the
// connector's configured transaction options. The caller owns the outcome:
// Commit, Rollback, or Close.
func (c *Connector) NewSession(ctx context.Context, target Target) (*Session, error) {
	if err := c.validateTarget(target); err != nil {
		return nil, err
	}
	db, err := c.Engine(target.DB)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, c.txOpts)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	id := uuid.New()
	s := &Session{
		id:      id,
		tx:      tx,
		schema:  target.Schema,
		dialect: c.dialect,
		logger: c.logger.With(
			zap.String("session_id", id.String()),
			zap.String("engine", engineLabel(target.DB)),
		),
	}
	s.logger.Debug("session opened", zap.String("schema", target.Schema))
	return s, nil
}

func (c *Connector) validateTarget(target Target) error {
	if target.Schema == "" {
		return nil
	}
	if err := sqlcheck.ValidateIdentifier(target.Schema); err != nil {
		return err
	}
	if !c.dialect.SupportsSchemas() {
		// sqlite: the schema target is accepted and ignored, matching the
		// no-op translation of a schema-less kind.
		return nil
	}
	if len(c.cfg.Connector.Schemas) > 0 && !contains(c.cfg.Connector.Schemas, target.Schema) {
		return fmt.Errorf("%w: schema %q is not configured", apperrors.ErrInvalidConfig, target.Schema)
	}
	return nil
}

func engineLabel(name string) string {
	if name == "" {
		return DefaultEngine
	}
	return name
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Schema is the session's schema target, empty when none.
func (s *Session) Schema() string { return s.schema }

// Dialect exposes the engine's dialect for SQL generation.
func (s *Session) Dialect() dialect.Dialect { return s.dialect }

// QualifyTable renders a table reference under the session's schema target.
func (s *Session) QualifyTable(table string) string {
	return s.dialect.QualifyTable(s.schema, table)
}

// ExecContext runs a statement inside the session's transaction.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx, err := s.live()
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the session's transaction.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	tx, err := s.live()
	if err != nil {
		return nil, err
	}
	return tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside the session's transaction.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	tx, err := s.live()
	if err != nil {
		return nil, err
	}
	return tx.QueryRowContext(ctx, query, args...), nil
}

func (s *Session) live() (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.ErrSessionClosed
	}
	return s.tx, nil
}

// Commit finishes the transaction. The session is unusable afterwards.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.ErrSessionClosed
	}
	s.closed = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	s.logger.Debug("session committed")
	return nil
}

// Rollback discards the transaction. The session is unusable afterwards.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.ErrSessionClosed
	}
	s.closed = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback session: %w", err)
	}
	s.logger.Debug("session rolled back")
	return nil
}

// Close rolls the session back if it is still open. Always safe to defer.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.Rollback()
}

// WithSession opens a session, runs fn, and settles the transaction: commit
// when fn returns nil, rollback and propagate when it does not. A commit
// failure is returned after the rollback attempt. The session must not
// escape fn.
func (c *Connector) WithSession(ctx context.Context, target Target, fn func(*Session) error) error {
	s, err := c.NewSession(ctx, target)
	if err != nil {
		return err
	}

	if err := fn(s); err != nil {
		if rbErr := s.Rollback(); rbErr != nil && !errors.Is(rbErr, apperrors.ErrSessionClosed) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	// a failed commit leaves nothing to roll back; the driver already
	// discarded the transaction
	return s.Commit()
}
