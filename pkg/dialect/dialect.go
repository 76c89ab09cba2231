// Package dialect holds the per-kind SQL differences behind one interface.
// Each supported database kind registers itself from its own file's init(),
// pulling in the matching driver as a side effect, so a connector only needs
// the kind name to route SQL correctly.
package dialect

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Dialect describes everything kind-specific the connector and the CRUD
// helpers need: DSN translation, placeholder style, identifier quoting,
// pagination syntax, insert-key retrieval, DDL types, and driver error
// classification.
type Dialect interface {
	// Name is the kind identifier ("postgres", "mysql", "mssql", "sqlite").
	Name() string

	// DriverName is the database/sql driver to open.
	DriverName() string

	// DSN converts a canonical connector URI into the driver-specific DSN.
	DSN(uri string) (string, error)

	// Placeholder renders the n-th (1-based) statement parameter.
	Placeholder(n int) string

	// QuoteIdentifier safely quotes a schema, table, or column name.
	QuoteIdentifier(name string) string

	// QualifyTable renders a table reference, schema-qualified when schema
	// is non-empty. This is how schema translation reaches generated SQL.
	QualifyTable(schema, table string) string

	// LimitOffset renders the pagination clause for limit/offset, either of
	// which may be zero. hasOrderBy is needed because SQL Server's
	// OFFSET/FETCH form is only legal after an ORDER BY.
	LimitOffset(limit, offset int, hasOrderBy bool) string

	// InsertSQL builds an INSERT over the quoted table and column names.
	// When wantID is set, the statement either yields the generated key as a
	// result row (lastInsertID false) or the caller reads
	// Result.LastInsertId (lastInsertID true).
	InsertSQL(table string, cols []string, pkCol string, wantID bool) (query string, lastInsertID bool)

	// ColumnType maps a Go type onto the kind's DDL column type.
	ColumnType(t reflect.Type) string

	// AutoPrimaryKeyDDL is the column definition for a db-assigned integer key.
	AutoPrimaryKeyDDL() string

	// CreateTableSQL renders an idempotent CREATE TABLE over a qualified
	// table reference and rendered column definitions.
	CreateTableSQL(table string, columnDefs []string) string

	// CreateSchemaSQL returns the idempotent schema-creation statement, or
	// ok=false when the kind has no schema concept.
	CreateSchemaSQL(schema string) (sql string, ok bool)

	// SupportsSchemas reports whether schema-level tenancy is available.
	SupportsSchemas() bool

	// RequiresCredentials reports whether user/password are mandatory.
	RequiresCredentials() bool

	// IsUniqueViolation classifies a driver error as a unique/PK violation.
	IsUniqueViolation(err error) bool
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Dialect)
)

// Register is called by each dialect file's init(). Thread-safe for
// concurrent init() calls.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name()] = d
}

// Get returns the dialect for a kind. Returns an error naming the registered
// kinds when the kind is unknown.
func Get(kind string) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if d, ok := registry[kind]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unsupported database kind %q (registered: %v)", kind, registeredLocked())
}

// Registered returns the sorted kind names of all registered dialects.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registeredLocked()
}

func registeredLocked() []string {
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// IsRegistered checks whether a kind is available.
func IsRegistered(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	bytesType    = reflect.TypeOf([]byte(nil))
	valuerType   = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// typeToken reduces a Go field type to a dialect-independent token that each
// dialect maps onto its DDL vocabulary. Pointers describe nullable columns
// and are unwrapped first.
func typeToken(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return "time"
	case t == bytesType:
		return "bytes"
	}

	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Array:
		// uuid.UUID is [16]byte behind a named type; it stringifies and
		// implements driver.Valuer in its package, so store it as text.
		if t.Implements(stringerType) || reflect.PointerTo(t).Implements(valuerType) {
			return "string"
		}
		return "bytes"
	default:
		return "string"
	}
}
