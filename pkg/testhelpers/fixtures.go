// Package testhelpers provides connector fixtures for integration-style
// tests. Fixtures use file-backed sqlite databases under the test's temp
// directory, so every test run starts from empty storage with no external
// services.
package testhelpers

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/fathomdata/sqlmux/pkg/config"
	"github.com/fathomdata/sqlmux/pkg/connector"
	"github.com/fathomdata/sqlmux/pkg/entity"
)

// NewConnector opens a sqlite connector over fresh databases with the given
// names ("main" when none given). Closed automatically when the test ends.
func NewConnector(t *testing.T, names ...string) *connector.Connector {
	t.Helper()
	if len(names) == 0 {
		names = []string{"main"}
	}

	cfg := &config.Config{
		Connector: config.ConnectorConfig{
			Kind:       "sqlite",
			HostOrPath: t.TempDir(),
			Names:      names,
		},
		Pool:    config.PoolConfig{MaxOpenConns: 5, MaxIdleConns: 2},
		Session: config.SessionConfig{Isolation: "default"},
	}

	c, err := connector.New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to open test connector: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// NewConnectorWithTables opens a connector and creates the tables for the
// given entity mappings on every engine.
func NewConnectorWithTables(t *testing.T, mappings []*entity.Mapping, names ...string) *connector.Connector {
	t.Helper()
	c := NewConnector(t, names...)
	if err := c.CreateTables(context.Background(), mappings...); err != nil {
		t.Fatalf("failed to create test tables: %v", err)
	}
	return c
}
