package dialect

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
)

func init() {
	Register(mssqlDialect{})
}

type mssqlDialect struct{}

func (mssqlDialect) Name() string       { return "mssql" }
func (mssqlDialect) DriverName() string { return "sqlserver" }

// DSN rewrites the canonical URI into go-mssqldb's sqlserver:// form, moving
// the database name from the path into the query string.
func (mssqlDialect) DSN(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse mssql uri: %w", err)
	}
	if u.Scheme != "mssql" {
		return "", fmt.Errorf("unexpected scheme %q for mssql", u.Scheme)
	}

	query := url.Values{}
	query.Add("database", trimLeadingSlash(u.Path))

	out := url.URL{
		Scheme:   "sqlserver",
		User:     u.User,
		Host:     u.Host,
		RawQuery: query.Encode(),
	}
	return out.String(), nil
}

func (mssqlDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (mssqlDialect) QuoteIdentifier(name string) string {
	return "[" + escapeQuotes(name, "]") + "]"
}

func (d mssqlDialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// LimitOffset uses OFFSET/FETCH, which SQL Server only allows after an
// ORDER BY; when the query has none, a constant ordering is injected.
func (mssqlDialect) LimitOffset(limit, offset int, hasOrderBy bool) string {
	if limit == 0 && offset == 0 {
		return ""
	}
	var sb strings.Builder
	if !hasOrderBy {
		sb.WriteString("ORDER BY (SELECT NULL) ")
	}
	fmt.Fprintf(&sb, "OFFSET %d ROWS", offset)
	if limit > 0 {
		fmt.Fprintf(&sb, " FETCH NEXT %d ROWS ONLY", limit)
	}
	return sb.String()
}

// InsertSQL uses an OUTPUT clause to surface the generated key; SQL Server
// has no RETURNING and LastInsertId is unsupported by the driver.
func (d mssqlDialect) InsertSQL(table string, cols []string, pkCol string, wantID bool) (string, bool) {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
		marks[i] = d.Placeholder(i + 1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(quoted, ", "))
	if wantID {
		q += " OUTPUT INSERTED." + d.QuoteIdentifier(pkCol)
	}
	q += fmt.Sprintf(" VALUES (%s)", strings.Join(marks, ", "))
	return q, false
}

func (mssqlDialect) ColumnType(t reflect.Type) string {
	switch typeToken(t) {
	case "int":
		return "BIGINT"
	case "float":
		return "FLOAT"
	case "bool":
		return "BIT"
	case "time":
		return "DATETIME2"
	case "bytes":
		return "VARBINARY(MAX)"
	default:
		return "NVARCHAR(255)"
	}
}

func (mssqlDialect) AutoPrimaryKeyDDL() string { return "BIGINT IDENTITY(1,1) PRIMARY KEY" }

// CreateTableSQL guards with OBJECT_ID because SQL Server has no
// CREATE TABLE IF NOT EXISTS.
func (mssqlDialect) CreateTableSQL(table string, columnDefs []string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		escapeQuotes(table, "'"), table, strings.Join(columnDefs, ", "))
}

func (d mssqlDialect) CreateSchemaSQL(schema string) (string, bool) {
	// CREATE SCHEMA must be the only statement in its batch, hence EXEC.
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.schemas WHERE name = N'%s') EXEC('CREATE SCHEMA %s')",
		escapeQuotes(schema, "'"), d.QuoteIdentifier(schema),
	), true
}

func (mssqlDialect) SupportsSchemas() bool     { return true }
func (mssqlDialect) RequiresCredentials() bool { return true }

// IsUniqueViolation matches SQL Server errors 2627 (unique constraint) and
// 2601 (unique index).
func (mssqlDialect) IsUniqueViolation(err error) bool {
	var sqlErr mssql.Error
	return errors.As(err, &sqlErr) && (sqlErr.Number == 2627 || sqlErr.Number == 2601)
}
