package connector

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/fathomdata/sqlmux/pkg/entity"
	"github.com/fathomdata/sqlmux/pkg/sqlcheck"
)

// CreateSchemas creates the named schemas on every distinct engine, using
// each kind's idempotent form. Kinds without schema support treat this as a
// no-op. No arguments means the configured schema list.
func (c *Connector) CreateSchemas(ctx context.Context, schemas ...string) error {
	if len(schemas) == 0 {
		schemas = c.cfg.Connector.Schemas
	}
	if len(schemas) == 0 {
		return nil
	}
	if _, ok := c.dialect.CreateSchemaSQL(schemas[0]); !ok {
		c.logger.Debug("schema creation skipped", zap.String("kind", c.cfg.Connector.Kind))
		return nil
	}

	for _, schema := range schemas {
		if err := sqlcheck.ValidateIdentifier(schema); err != nil {
			return err
		}
	}

	for _, name := range c.distinctEngines() {
		db, err := c.Engine(name)
		if err != nil {
			return err
		}
		for _, schema := range schemas {
			stmt, _ := c.dialect.CreateSchemaSQL(schema)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema %q on %q: %w", schema, name, err)
			}
		}
	}
	c.logger.Info("schemas ensured", zap.Strings("schemas", schemas))
	return nil
}

// CreateTables generates idempotent CREATE TABLE statements from entity
// mappings and applies them to every distinct engine, once per configured
// schema (or unqualified when no schemas are configured or supported).
func (c *Connector) CreateTables(ctx context.Context, mappings ...*entity.Mapping) error {
	schemas := c.cfg.Connector.Schemas
	if len(schemas) == 0 || !c.dialect.SupportsSchemas() {
		schemas = []string{""}
	}

	for _, name := range c.distinctEngines() {
		db, err := c.Engine(name)
		if err != nil {
			return err
		}
		for _, schema := range schemas {
			for _, m := range mappings {
				stmt, err := c.createTableSQL(schema, m)
				if err != nil {
					return err
				}
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("create table %q on %q: %w", m.Table, name, err)
				}
			}
		}
	}
	c.logger.Info("tables ensured", zap.Int("tables", len(mappings)))
	return nil
}

func (c *Connector) createTableSQL(schema string, m *entity.Mapping) (string, error) {
	defs := make([]string, 0, len(m.Columns))
	for _, col := range m.Columns {
		if err := sqlcheck.ValidateIdentifier(col.Name); err != nil {
			return "", err
		}
		def := c.dialect.QuoteIdentifier(col.Name) + " " + c.columnDDL(col)
		defs = append(defs, def)
	}
	table := c.dialect.QualifyTable(schema, m.Table)
	return c.dialect.CreateTableSQL(table, defs), nil
}

func (c *Connector) columnDDL(col entity.Column) string {
	if col.Auto {
		return c.dialect.AutoPrimaryKeyDDL()
	}

	// an explicit ddl tag is the complete definition, constraints included
	if col.DDL != "" {
		return col.DDL
	}

	var sb strings.Builder
	sb.WriteString(c.dialect.ColumnType(col.Type))
	if col.PK {
		sb.WriteString(" PRIMARY KEY")
	} else if col.Type.Kind() != reflect.Pointer {
		// pointer fields model nullable columns
		sb.WriteString(" NOT NULL")
	}
	return sb.String()
}

// distinctEngines returns the configured names deduplicated by backing
// engine, aliases excluded.
func (c *Connector) distinctEngines() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	seen := make(map[string]bool)
	for _, name := range c.cfg.Connector.Names {
		uri := c.uris[name]
		if seen[uri] {
			continue
		}
		seen[uri] = true
		out = append(out, name)
	}
	return out
}
