// Package entity derives relational metadata from Go structs. A Mapping
// describes the table, columns, primary key, and relationships of an entity
// type, read once from struct tags and cached for the life of the process.
//
// Tags:
//
//	`db:"column"`          maps the field to a column
//	`db:"column,pk"`       marks the primary key
//	`db:"column,pk,auto"`  db-assigned primary key (omitted from inserts)
//	`db:"-"`               skips the field
//	`ddl:"TEXT"`           overrides the generated column type
//	`rel:"fk=column"`      relationship field (struct/pointer: to-one via a
//	                       local foreign key column; slice: to-many via a
//	                       foreign key column on the related table)
package entity

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
)

// TableNamer overrides the derived table name for an entity type.
type TableNamer interface {
	TableName() string
}

// Column is one mapped struct field.
type Column struct {
	Name  string // column name
	Field string // struct field name
	Index []int  // reflect field index path
	Type  reflect.Type
	PK    bool
	Auto  bool   // db-assigned; excluded from inserts and updates
	DDL   string // explicit column type, empty for dialect default
}

// Rel is a relationship field. For a to-one relationship FK names a column
// on this entity holding the related primary key; for a to-many it names
// the column on the related table pointing back at this entity.
type Rel struct {
	Field  string
	Index  []int
	Target reflect.Type // related entity struct type
	FK     string
	ToMany bool
}

// Mapping is the cached relational description of one entity type.
type Mapping struct {
	Type    reflect.Type
	Table   string
	Columns []Column
	PK      *Column
	Rels    []Rel

	byName map[string]*Column
	relsBy map[string]*Rel
}

var mappingCache sync.Map // reflect.Type -> *Mapping

// For returns the mapping for T, deriving it on first use.
func For[T any]() (*Mapping, error) {
	var zero T
	return Of(reflect.TypeOf(zero))
}

// Of returns the mapping for a struct type (pointers are unwrapped).
func Of(t reflect.Type) (*Mapping, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity: %v is not a struct type", t)
	}

	if cached, ok := mappingCache.Load(t); ok {
		return cached.(*Mapping), nil
	}

	m, err := buildMapping(t)
	if err != nil {
		return nil, err
	}
	actual, _ := mappingCache.LoadOrStore(t, m)
	return actual.(*Mapping), nil
}

func buildMapping(t reflect.Type) (*Mapping, error) {
	m := &Mapping{
		Type:   t,
		Table:  tableName(t),
		byName: make(map[string]*Column),
		relsBy: make(map[string]*Rel),
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		if relTag, ok := f.Tag.Lookup("rel"); ok {
			rel, err := parseRel(f, relTag)
			if err != nil {
				return nil, err
			}
			m.Rels = append(m.Rels, rel)
			continue
		}

		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}

		col := Column{
			Field: f.Name,
			Index: f.Index,
			Type:  f.Type,
			DDL:   f.Tag.Get("ddl"),
		}
		parts := strings.Split(tag, ",")
		col.Name = parts[0]
		if col.Name == "" {
			col.Name = snakeCase(f.Name)
		}
		for _, opt := range parts[1:] {
			switch opt {
			case "pk":
				col.PK = true
			case "auto":
				col.Auto = true
			}
		}
		if col.Auto && !col.PK {
			return nil, fmt.Errorf("entity: %s.%s: auto requires pk", t.Name(), f.Name)
		}
		if _, dup := m.byName[col.Name]; dup {
			return nil, fmt.Errorf("entity: %s maps column %q twice", t.Name(), col.Name)
		}

		m.Columns = append(m.Columns, col)
		last := &m.Columns[len(m.Columns)-1]
		m.byName[col.Name] = last
		if col.PK {
			if m.PK != nil {
				return nil, fmt.Errorf("entity: %s declares multiple primary keys", t.Name())
			}
			m.PK = last
		}
	}

	if len(m.Columns) == 0 {
		return nil, fmt.Errorf("entity: %s has no mapped columns", t.Name())
	}
	// byName points into m.Columns, which must not move after this; rebuild
	// the index once the slice is final.
	m.byName = make(map[string]*Column, len(m.Columns))
	m.PK = nil
	for i := range m.Columns {
		c := &m.Columns[i]
		m.byName[c.Name] = c
		if c.PK {
			m.PK = c
		}
	}
	for i := range m.Rels {
		m.relsBy[m.Rels[i].Field] = &m.Rels[i]
	}
	return m, nil
}

func parseRel(f reflect.StructField, tag string) (Rel, error) {
	rel := Rel{Field: f.Name, Index: f.Index}

	ft := f.Type
	switch ft.Kind() {
	case reflect.Slice:
		rel.ToMany = true
		ft = ft.Elem()
	case reflect.Pointer, reflect.Struct:
	default:
		return Rel{}, fmt.Errorf("entity: %s: rel field must be struct, pointer, or slice", f.Name)
	}
	for ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	if ft.Kind() != reflect.Struct {
		return Rel{}, fmt.Errorf("entity: %s: rel target %v is not a struct", f.Name, ft)
	}
	rel.Target = ft

	for _, part := range strings.Split(tag, ";") {
		k, v, found := strings.Cut(part, "=")
		if !found || k != "fk" || v == "" {
			return Rel{}, fmt.Errorf("entity: %s: malformed rel tag %q", f.Name, tag)
		}
		rel.FK = v
	}
	if rel.FK == "" {
		return Rel{}, fmt.Errorf("entity: %s: rel tag missing fk", f.Name)
	}
	return rel, nil
}

// Column looks a column up by name. Unknown names return ErrUnknownField so
// callers can propagate or skip per their strictness setting.
func (m *Mapping) Column(name string) (*Column, error) {
	if c, ok := m.byName[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q on %s", apperrors.ErrUnknownField, name, m.Table)
}

// HasColumn reports whether name is a mapped column.
func (m *Mapping) HasColumn(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Rel looks a relationship up by struct field name.
func (m *Mapping) Rel(field string) (*Rel, bool) {
	r, ok := m.relsBy[field]
	return r, ok
}

// ColumnNames returns mapped column names in declaration order, optionally
// excluding db-assigned ones (the insert column list).
func (m *Mapping) ColumnNames(includeAuto bool) []string {
	names := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		if c.Auto && !includeAuto {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// Values extracts the given columns' values from an entity instance.
func (m *Mapping) Values(entity any, cols []string) ([]any, error) {
	v, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(cols))
	for _, name := range cols {
		c, err := m.Column(name)
		if err != nil {
			return nil, err
		}
		out = append(out, v.FieldByIndex(c.Index).Interface())
	}
	return out, nil
}

// PrimaryKey returns the entity's primary key value.
func (m *Mapping) PrimaryKey(entity any) (any, error) {
	if m.PK == nil {
		return nil, fmt.Errorf("entity: %s has no primary key", m.Table)
	}
	v, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	return v.FieldByIndex(m.PK.Index).Interface(), nil
}

// PrimaryKeyTarget returns a pointer to the entity's primary key field,
// usable as a Scan destination of the field's own type. The entity must be
// addressable (a pointer).
func (m *Mapping) PrimaryKeyTarget(entity any) (any, error) {
	if m.PK == nil {
		return nil, fmt.Errorf("entity: %s has no primary key", m.Table)
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, fmt.Errorf("entity: PrimaryKeyTarget needs a non-nil pointer, got %T", entity)
	}
	return v.Elem().FieldByIndex(m.PK.Index).Addr().Interface(), nil
}

// SetPrimaryKey writes a db-assigned integer key back onto the entity. The
// entity must be addressable (a pointer). Drivers that report keys through
// LastInsertId only produce integers; string or uuid keys go through
// PrimaryKeyTarget instead.
func (m *Mapping) SetPrimaryKey(entity any, key int64) error {
	if m.PK == nil {
		return fmt.Errorf("entity: %s has no primary key", m.Table)
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("entity: SetPrimaryKey needs a non-nil pointer, got %T", entity)
	}
	field := v.Elem().FieldByIndex(m.PK.Index)
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		field.SetInt(key)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		field.SetUint(uint64(key))
	default:
		return fmt.Errorf("entity: primary key field %s is not integer", m.PK.Field)
	}
	return nil
}

func (m *Mapping) structValue(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("entity: nil %v", m.Type)
		}
		v = v.Elem()
	}
	if v.Type() != m.Type {
		return reflect.Value{}, fmt.Errorf("entity: expected %v, got %T", m.Type, entity)
	}
	return v, nil
}

func tableName(t reflect.Type) string {
	if namer, ok := reflect.New(t).Interface().(TableNamer); ok {
		return namer.TableName()
	}
	return inflection.Plural(snakeCase(t.Name()))
}

func snakeCase(name string) string {
	var sb strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
