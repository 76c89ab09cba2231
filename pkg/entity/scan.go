package entity

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"
)

// scanLayouts are the textual timestamp forms drivers hand back when a
// column was created as plain text or the driver does not parse temporals.
var scanLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ScanRow reads the current row of rows into dest, a pointer to a mapped
// struct. Result columns are matched to mapped columns by name; columns the
// mapping does not know are discarded. rows.Next must already have returned
// true.
func ScanRow(rows *sql.Rows, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("entity: ScanRow needs a non-nil pointer, got %T", dest)
	}
	m, err := Of(v.Type())
	if err != nil {
		return err
	}

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read columns: %w", err)
	}

	slots := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range slots {
		ptrs[i] = &slots[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	sv := v.Elem()
	for i, name := range cols {
		c, err := m.Column(name)
		if err != nil {
			continue
		}
		if err := assignValue(sv.FieldByIndex(c.Index), slots[i]); err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
	}
	return nil
}

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// assignValue coerces a driver-scanned value onto a struct field. Drivers
// disagree about temporal and boolean representations, so this accepts the
// common shapes each one produces.
func assignValue(field reflect.Value, val any) error {
	if val == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	// nullable columns map to pointer fields
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := assignValue(elem.Elem(), val); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}

	// sql.Scanner fields (uuid.UUID and friends) know their own coercions
	if field.CanAddr() && field.Addr().Type().Implements(scannerType) {
		return field.Addr().Interface().(sql.Scanner).Scan(val)
	}

	switch field.Type() {
	case timeType:
		return assignTime(field, val)
	}

	switch field.Kind() {
	case reflect.String:
		switch t := val.(type) {
		case []byte:
			field.SetString(string(t))
			return nil
		case string:
			field.SetString(t)
			return nil
		}
	case reflect.Bool:
		switch t := val.(type) {
		case int64:
			field.SetBool(t != 0)
			return nil
		case bool:
			field.SetBool(t)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch t := val.(type) {
		case int64:
			field.SetInt(t)
			return nil
		case float64:
			field.SetInt(int64(t))
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if t, ok := val.(int64); ok {
			field.SetUint(uint64(t))
			return nil
		}
	case reflect.Float32, reflect.Float64:
		switch t := val.(type) {
		case float64:
			field.SetFloat(t)
			return nil
		case int64:
			field.SetFloat(float64(t))
			return nil
		}
	}

	if rv.Type().ConvertibleTo(field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", val, field.Type())
}

func assignTime(field reflect.Value, val any) error {
	var text string
	switch t := val.(type) {
	case time.Time:
		field.Set(reflect.ValueOf(t))
		return nil
	case string:
		text = t
	case []byte:
		text = string(t)
	default:
		return fmt.Errorf("cannot assign %T to time.Time", val)
	}
	for _, layout := range scanLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			field.Set(reflect.ValueOf(ts))
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", text)
}
