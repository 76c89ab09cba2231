package dialect

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"
)

func init() {
	Register(postgresDialect{})
}

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" }

// DSN validates the canonical URI and hands it to pgx unchanged; the stdlib
// driver accepts postgres:// URLs natively.
func (postgresDialect) DSN(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse postgres uri: %w", err)
	}
	if u.Scheme != "postgres" {
		return "", fmt.Errorf("unexpected scheme %q for postgres", u.Scheme)
	}
	return uri, nil
}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (d postgresDialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func (postgresDialect) LimitOffset(limit, offset int, _ bool) string {
	return limitOffsetClause(limit, offset)
}

func (d postgresDialect) InsertSQL(table string, cols []string, pkCol string, wantID bool) (string, bool) {
	q := insertStatement(d, table, cols)
	if wantID {
		q += " RETURNING " + d.QuoteIdentifier(pkCol)
	}
	return q, false
}

func (postgresDialect) ColumnType(t reflect.Type) string {
	switch typeToken(t) {
	case "int":
		return "BIGINT"
	case "float":
		return "DOUBLE PRECISION"
	case "bool":
		return "BOOLEAN"
	case "time":
		return "TIMESTAMPTZ"
	case "bytes":
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func (postgresDialect) AutoPrimaryKeyDDL() string { return "BIGSERIAL PRIMARY KEY" }

func (postgresDialect) CreateTableSQL(table string, columnDefs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(columnDefs, ", "))
}

func (d postgresDialect) CreateSchemaSQL(schema string) (string, bool) {
	return "CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdentifier(schema), true
}

func (postgresDialect) SupportsSchemas() bool { return true }
func (postgresDialect) RequiresCredentials() bool { return true }

// IsUniqueViolation matches PostgreSQL error class 23505 (unique_violation).
func (postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// limitOffsetClause is the LIMIT/OFFSET form shared by the kinds that
// support it without ceremony.
func limitOffsetClause(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		fmt.Fprintf(&sb, "LIMIT %d", limit)
	}
	if offset > 0 {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "OFFSET %d", offset)
	}
	return sb.String()
}

// insertStatement renders "INSERT INTO t (a, b) VALUES (p1, p2)" with the
// dialect's quoting and placeholders.
func insertStatement(d Dialect, table string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
		marks[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
}
