package dialect

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	sqlite "modernc.org/sqlite"
)

func init() {
	Register(sqliteDialect{})
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

// DSN turns "sqlite:///abs/path/file" into a file: DSN with a busy timeout
// and foreign keys enabled, the pragmas the modernc driver honors.
func (sqliteDialect) DSN(uri string) (string, error) {
	if !strings.HasPrefix(uri, "sqlite://") {
		return "", fmt.Errorf("unexpected uri %q for sqlite", uri)
	}
	path := strings.TrimPrefix(uri, "sqlite://")
	if path == "" || path == "/" {
		return "", fmt.Errorf("sqlite uri %q has no file path", uri)
	}
	query := url.Values{}
	query.Add("_pragma", "busy_timeout(5000)")
	query.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + query.Encode(), nil
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) QuoteIdentifier(name string) string {
	return `"` + escapeQuotes(name, `"`) + `"`
}

func (d sqliteDialect) QualifyTable(_, table string) string {
	// SQLite has no schema-level tenancy; the schema target is ignored at
	// connector construction, so nothing to qualify here.
	return d.QuoteIdentifier(table)
}

func (sqliteDialect) LimitOffset(limit, offset int, _ bool) string {
	if limit == 0 && offset > 0 {
		return fmt.Sprintf("LIMIT -1 OFFSET %d", offset)
	}
	return limitOffsetClause(limit, offset)
}

func (d sqliteDialect) InsertSQL(table string, cols []string, _ string, wantID bool) (string, bool) {
	return insertStatement(d, table, cols), wantID
}

func (sqliteDialect) ColumnType(t reflect.Type) string {
	switch typeToken(t) {
	case "int":
		return "INTEGER"
	case "float":
		return "REAL"
	case "bool":
		return "BOOLEAN"
	case "time":
		return "TIMESTAMP"
	case "bytes":
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) AutoPrimaryKeyDDL() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (sqliteDialect) CreateTableSQL(table string, columnDefs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(columnDefs, ", "))
}

func (sqliteDialect) CreateSchemaSQL(string) (string, bool) { return "", false }

func (sqliteDialect) SupportsSchemas() bool     { return false }
func (sqliteDialect) RequiresCredentials() bool { return false }

// IsUniqueViolation matches SQLite extended result codes 1555
// (SQLITE_CONSTRAINT_PRIMARYKEY) and 2067 (SQLITE_CONSTRAINT_UNIQUE).
func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	return errors.As(err, &sqlErr) && (sqlErr.Code() == 1555 || sqlErr.Code() == 2067)
}

// escapeQuotes doubles the closing quote character inside an identifier.
func escapeQuotes(name, quote string) string {
	return strings.ReplaceAll(name, quote, quote+quote)
}

// trimLeadingSlash strips the path separator url.Parse leaves on the
// database name.
func trimLeadingSlash(path string) string {
	return strings.TrimPrefix(path, "/")
}
