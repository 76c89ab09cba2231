package entity

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"
)

// ToMap serializes an entity's mapped columns into a map keyed by column
// name. Temporal values are rendered as RFC 3339 text; relationship fields
// are omitted.
func ToMap(entity any) (map[string]any, error) {
	m, err := Of(reflect.TypeOf(entity))
	if err != nil {
		return nil, err
	}
	v, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	return columnsToMap(m, v), nil
}

// ToMapDeep serializes like ToMap but follows relationship fields: to-one
// relations become nested maps, to-many relations become slices of maps.
// Each entity is serialized at most once per traversal, tracked by its
// (type, primary key) identity, so cyclic and diamond-shaped object graphs
// terminate; a revisited entity is skipped rather than re-expanded.
func ToMapDeep(entity any) (map[string]any, error) {
	return deepToMap(reflect.ValueOf(entity), map[visitKey]bool{})
}

type visitKey struct {
	t  reflect.Type
	pk any
}

func deepToMap(v reflect.Value, visited map[visitKey]bool) (map[string]any, error) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	m, err := Of(v.Type())
	if err != nil {
		return nil, err
	}

	if m.PK != nil {
		key := visitKey{t: m.Type, pk: normalizeKey(v.FieldByIndex(m.PK.Index))}
		if visited[key] {
			return nil, nil
		}
		visited[key] = true
	}

	out := columnsToMap(m, v)
	for _, rel := range m.Rels {
		fv := v.FieldByIndex(rel.Index)
		if rel.ToMany {
			if fv.IsNil() {
				continue
			}
			children := make([]map[string]any, 0, fv.Len())
			for i := 0; i < fv.Len(); i++ {
				child, err := deepToMap(fv.Index(i), visited)
				if err != nil {
					return nil, err
				}
				if child != nil {
					children = append(children, child)
				}
			}
			out[snakeCase(rel.Field)] = children
			continue
		}
		if fv.Kind() == reflect.Pointer && fv.IsNil() {
			continue
		}
		child, err := deepToMap(fv, visited)
		if err != nil {
			return nil, err
		}
		if child != nil {
			out[snakeCase(rel.Field)] = child
		}
	}
	return out, nil
}

func columnsToMap(m *Mapping, v reflect.Value) map[string]any {
	out := make(map[string]any, len(m.Columns))
	for _, c := range m.Columns {
		out[c.Name] = formatValue(v.FieldByIndex(c.Index).Interface())
	}
	return out
}

// formatValue normalizes a column value for a serialized mapping. Times
// become RFC 3339 strings, nil pointers become nil, other pointers
// dereference.
func formatValue(val any) any {
	switch t := val.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return formatValue(rv.Elem().Interface())
	}
	return val
}

// normalizeKey reduces a primary key value to a comparable identity so ints
// of different widths and stringer keys collide correctly in the visited set.
func normalizeKey(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	case reflect.String:
		return v.String()
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}

// RowsToMaps drains *sql.Rows into serialized mappings using the result
// set's own column names. The caller keeps ownership of rows and must still
// Close them.
func RowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	return rowsToMaps(rows, -1)
}

// RowsToMapsLimit collects at most max rows, leaving the remainder of the
// result set unread. A negative max collects everything.
func RowsToMapsLimit(rows *sql.Rows, max int) ([]map[string]any, error) {
	return rowsToMaps(rows, max)
}

func rowsToMaps(rows *sql.Rows, max int) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		if max >= 0 && len(out) == max {
			return out, nil
		}
		slots := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range slots {
			ptrs[i] = &slots[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = formatValue(normalizeScanned(slots[i]))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// normalizeScanned smooths over driver representation differences: raw byte
// slices read as text, so equal values compare equal across kinds.
func normalizeScanned(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}
