package dialect

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-sql-driver/mysql"
)

func init() {
	Register(mysqlDialect{})
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }

// DSN rewrites the canonical URI into go-sql-driver's
// "user:pass@tcp(host:port)/db" form. parseTime is forced on so temporal
// columns scan into time.Time instead of raw bytes.
func (mysqlDialect) DSN(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse mysql uri: %w", err)
	}
	if u.Scheme != "mysql" {
		return "", fmt.Errorf("unexpected scheme %q for mysql", u.Scheme)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	cfg.DBName = trimLeadingSlash(u.Path)
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	return cfg.FormatDSN(), nil
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) QuoteIdentifier(name string) string {
	return "`" + escapeQuotes(name, "`") + "`"
}

func (d mysqlDialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// LimitOffset: MySQL refuses a bare OFFSET, so an offset without a limit
// gets the documented "enormous limit" idiom.
func (mysqlDialect) LimitOffset(limit, offset int, _ bool) string {
	if limit == 0 && offset > 0 {
		return fmt.Sprintf("LIMIT 18446744073709551615 OFFSET %d", offset)
	}
	return limitOffsetClause(limit, offset)
}

func (d mysqlDialect) InsertSQL(table string, cols []string, _ string, wantID bool) (string, bool) {
	return insertStatement(d, table, cols), wantID
}

func (mysqlDialect) ColumnType(t reflect.Type) string {
	switch typeToken(t) {
	case "int":
		return "BIGINT"
	case "float":
		return "DOUBLE"
	case "bool":
		return "BOOLEAN"
	case "time":
		return "DATETIME(6)"
	case "bytes":
		return "BLOB"
	default:
		return "VARCHAR(255)"
	}
}

func (mysqlDialect) AutoPrimaryKeyDDL() string { return "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY" }

func (mysqlDialect) CreateTableSQL(table string, columnDefs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(columnDefs, ", "))
}

// CreateSchemaSQL: in MySQL, CREATE SCHEMA is a synonym for CREATE DATABASE;
// schema-level tenancy there means database-level tenancy.
func (d mysqlDialect) CreateSchemaSQL(schema string) (string, bool) {
	return "CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdentifier(schema), true
}

func (mysqlDialect) SupportsSchemas() bool     { return true }
func (mysqlDialect) RequiresCredentials() bool { return true }

// IsUniqueViolation matches MySQL error 1062 (ER_DUP_ENTRY).
func (mysqlDialect) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
