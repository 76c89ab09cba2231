// Package querybind turns structured filter and sort parameters into WHERE
// and ORDER BY fragments. Every referenced field is validated against the
// entity mapping before any SQL is rendered, and every value travels as a
// statement parameter.
package querybind

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fathomdata/sqlmux/pkg/dialect"
	"github.com/fathomdata/sqlmux/pkg/entity"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLike    Op = "like"
	OpIn      Op = "in"
	OpIsNull  Op = "isnull"
	OpNotNull Op = "notnull"
)

var comparisons = map[Op]string{
	OpEq:   "=",
	OpNeq:  "<>",
	OpLt:   "<",
	OpLte:  "<=",
	OpGt:   ">",
	OpGte:  ">=",
	OpLike: "LIKE",
}

// Filter constrains one column. Value is ignored for the null checks; for
// OpIn it must be a slice.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Sort orders the result by one column.
type Sort struct {
	Field string
	Desc  bool
}

// Params carries the filters and sort order of a list query. Filters are
// combined with AND.
type Params struct {
	Filters []Filter
	Sorts   []Sort
}

// Where is shorthand for one filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Eq is shorthand for the most common filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Asc and Desc are sort shorthands.
func Asc(field string) Sort  { return Sort{Field: field} }
func Desc(field string) Sort { return Sort{Field: field, Desc: true} }

// Empty reports whether the params constrain nothing.
func (p Params) Empty() bool {
	return len(p.Filters) == 0 && len(p.Sorts) == 0
}

// Clause is the rendered output: fragments without their leading WHERE /
// ORDER BY keywords, plus the positional args backing the placeholders.
type Clause struct {
	Where   string
	Args    []any
	OrderBy string
}

// Bind validates p against the mapping and renders it with the dialect's
// placeholders and quoting. argOffset is the count of statement parameters
// the caller has already placed before these.
func Bind(m *entity.Mapping, d dialect.Dialect, p Params, argOffset int) (Clause, error) {
	var (
		clause Clause
		preds  []string
		n      = argOffset
	)

	for _, f := range p.Filters {
		col, err := m.Column(f.Field)
		if err != nil {
			return Clause{}, err
		}
		quoted := d.QuoteIdentifier(col.Name)

		switch f.Op {
		case OpIsNull:
			preds = append(preds, quoted+" IS NULL")
		case OpNotNull:
			preds = append(preds, quoted+" IS NOT NULL")
		case OpIn:
			values, err := sliceValues(f)
			if err != nil {
				return Clause{}, err
			}
			marks := make([]string, len(values))
			for i, v := range values {
				n++
				marks[i] = d.Placeholder(n)
				clause.Args = append(clause.Args, v)
			}
			preds = append(preds, fmt.Sprintf("%s IN (%s)", quoted, strings.Join(marks, ", ")))
		default:
			cmp, ok := comparisons[f.Op]
			if !ok {
				return Clause{}, fmt.Errorf("querybind: unsupported operator %q", f.Op)
			}
			n++
			preds = append(preds, fmt.Sprintf("%s %s %s", quoted, cmp, d.Placeholder(n)))
			clause.Args = append(clause.Args, f.Value)
		}
	}
	clause.Where = strings.Join(preds, " AND ")

	orders := make([]string, 0, len(p.Sorts))
	for _, s := range p.Sorts {
		col, err := m.Column(s.Field)
		if err != nil {
			return Clause{}, err
		}
		dir := " ASC"
		if s.Desc {
			dir = " DESC"
		}
		orders = append(orders, d.QuoteIdentifier(col.Name)+dir)
	}
	clause.OrderBy = strings.Join(orders, ", ")

	return clause, nil
}

func sliceValues(f Filter) ([]any, error) {
	rv := reflect.ValueOf(f.Value)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("querybind: %s: in-filter value must be a slice, got %T", f.Field, f.Value)
	}
	if rv.Len() == 0 {
		return nil, fmt.Errorf("querybind: %s: in-filter value is empty", f.Field)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
