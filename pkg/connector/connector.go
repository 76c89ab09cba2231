package connector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
	"github.com/fathomdata/sqlmux/pkg/config"
	"github.com/fathomdata/sqlmux/pkg/dialect"
	"github.com/fathomdata/sqlmux/pkg/logging"
	"github.com/fathomdata/sqlmux/pkg/retry"
)

// Connector owns one engine per configured database name. All engines are
// opened and verified at construction; there is no lazy or re-creation path.
type Connector struct {
	cfg     *config.Config
	dialect dialect.Dialect
	logger  *zap.Logger
	uris    map[string]string
	txOpts  *sql.TxOptions

	mu      sync.RWMutex
	engines map[string]*sql.DB
	closed  bool
}

// New builds the URI set, opens an engine per database, and verifies each
// with a retried ping. Any failure closes the engines opened so far and
// returns the error.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Connector, error) {
	logger = logging.OrNop(logger)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := dialect.Get(cfg.Connector.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidConfig, err)
	}
	uris, err := BuildURIs(cfg.Connector)
	if err != nil {
		return nil, err
	}
	txOpts, err := cfg.Session.TxOptions()
	if err != nil {
		return nil, err
	}

	c := &Connector{
		cfg:     cfg,
		dialect: d,
		logger:  logger,
		uris:    uris,
		txOpts:  txOpts,
		engines: make(map[string]*sql.DB, len(uris)),
	}

	// Aliased names share one engine; open each distinct URI once.
	byURI := make(map[string]*sql.DB, len(uris))
	for _, name := range c.engineNames() {
		uri := uris[name]
		if db, ok := byURI[uri]; ok {
			c.engines[name] = db
			continue
		}
		db, err := c.openEngine(ctx, name, uri)
		if err != nil {
			c.Close()
			return nil, err
		}
		byURI[uri] = db
		c.engines[name] = db
	}

	logger.Info("connector ready",
		zap.String("kind", cfg.Connector.Kind),
		zap.Int("engines", len(byURI)))
	return c, nil
}

func (c *Connector) openEngine(ctx context.Context, name, uri string) (*sql.DB, error) {
	dsn, err := c.dialect.DSN(uri)
	if err != nil {
		return nil, fmt.Errorf("engine %q: %w", name, err)
	}

	db, err := sql.Open(c.dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("engine %q: open: %w", name, err)
	}

	pool := c.cfg.Pool
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeMin) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTimeMin) * time.Minute)

	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		err := db.PingContext(ctx)
		if err != nil && !retry.IsRetryable(err) {
			// bad credentials or an unknown database will not heal
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine %q: ping %s: %w",
			name, logging.SanitizeURI(uri), err)
	}

	c.logger.Debug("engine opened",
		zap.String("engine", name),
		zap.String("uri", logging.SanitizeURI(uri)))
	return db, nil
}

// engineNames returns the URI keys with stable ordering, the configured
// names first so aliases resolve against an already-opened engine.
func (c *Connector) engineNames() []string {
	names := make([]string, 0, len(c.uris))
	names = append(names, c.cfg.Connector.Names...)
	if !contains(names, DefaultEngine) {
		names = append(names, DefaultEngine)
	}
	return names
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

// Engine returns the engine registered under name.
func (c *Connector) Engine(name string) (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, apperrors.ErrConnectorClosed
	}
	if name == "" {
		name = DefaultEngine
	}
	db, ok := c.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEngine, name)
	}
	return db, nil
}

// Names returns the registered engine names, sorted, aliases included.
func (c *Connector) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.engines))
	for n := range c.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// URIs returns a sanitized copy of the URI set, safe to log or display.
func (c *Connector) URIs() map[string]string {
	out := make(map[string]string, len(c.uris))
	for name, uri := range c.uris {
		out[name] = logging.SanitizeURI(uri)
	}
	return out
}

// Dialect exposes the connector's dialect for SQL generation.
func (c *Connector) Dialect() dialect.Dialect { return c.dialect }

// Schemas returns the configured schema targets.
func (c *Connector) Schemas() []string { return c.cfg.Connector.Schemas }

// Stats snapshots pool statistics per distinct engine. Aliases are folded
// into the engine they point at.
func (c *Connector) Stats() map[string]sql.DBStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]sql.DBStats)
	seen := make(map[*sql.DB]bool)
	for _, name := range c.cfg.Connector.Names {
		db, ok := c.engines[name]
		if !ok || seen[db] {
			continue
		}
		seen[db] = true
		out[name] = db.Stats()
	}
	return out
}

// Close disposes every engine. Safe to call more than once; sessions opened
// before Close keep their transactions but new work is refused.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	seen := make(map[*sql.DB]bool)
	for name, db := range c.engines {
		if seen[db] {
			continue
		}
		seen[db] = true
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close engine %q: %w", name, err)
		}
	}
	c.logger.Info("connector closed", zap.Int("engines", len(seen)))
	return firstErr
}
