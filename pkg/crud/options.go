package crud

import (
	"github.com/fathomdata/sqlmux/pkg/connector"
	"github.com/fathomdata/sqlmux/pkg/querybind"
)

// Option adjusts a single store call.
type Option func(*callOpts)

type callOpts struct {
	session *connector.Session
	db      string
	schema  string

	returnID bool
	byField  string
	fields   []string
	recurse  bool
	strict   bool

	params    querybind.Params
	limit     int
	offset    int
	paginated bool
}

func applyOptions(opts []Option) callOpts {
	o := callOpts{limit: -1, offset: -1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSession joins the caller's open session instead of opening a scope.
// Commit and rollback stay with the caller.
func WithSession(s *connector.Session) Option {
	return func(o *callOpts) { o.session = s }
}

// OnDB targets a named engine for this call. Ignored when WithSession is
// also given.
func OnDB(name string) Option {
	return func(o *callOpts) { o.db = name }
}

// OnSchema targets a schema for this call. Ignored when WithSession is also
// given.
func OnSchema(name string) Option {
	return func(o *callOpts) { o.schema = name }
}

// ReturnID makes Create read the db-assigned key back onto the entity.
func ReturnID() Option {
	return func(o *callOpts) { o.returnID = true }
}

// ByField makes Get and Exists look an entity up by the named column
// instead of the primary key.
func ByField(column string) Option {
	return func(o *callOpts) { o.byField = column }
}

// Fields narrows the result to a projection. Get additionally accepts
// dotted "relation.property" paths, resolved through a join on a to-one
// relationship.
func Fields(columns ...string) Option {
	return func(o *callOpts) { o.fields = columns }
}

// Recurse loads relationship fields before serialization.
func Recurse() Option {
	return func(o *callOpts) { o.recurse = true }
}

// Strict makes Update fail on unknown field names instead of skipping them.
func Strict() Option {
	return func(o *callOpts) { o.strict = true }
}

// WithParams attaches filter and sort parameters to List.
func WithParams(p querybind.Params) Option {
	return func(o *callOpts) { o.params = p }
}

// WithFilter appends filters to List's parameters.
func WithFilter(filters ...querybind.Filter) Option {
	return func(o *callOpts) { o.params.Filters = append(o.params.Filters, filters...) }
}

// SortBy appends sort fields to List's parameters.
func SortBy(sorts ...querybind.Sort) Option {
	return func(o *callOpts) { o.params.Sorts = append(o.params.Sorts, sorts...) }
}

// Limit caps how many elements List returns. At most MaxListLimit.
func Limit(n int) Option {
	return func(o *callOpts) {
		o.limit = n
		o.paginated = true
	}
}

// Offset skips the first n elements in List.
func Offset(n int) Option {
	return func(o *callOpts) {
		o.offset = n
		o.paginated = true
	}
}
