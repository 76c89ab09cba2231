package crud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
	"github.com/fathomdata/sqlmux/pkg/connector"
	"github.com/fathomdata/sqlmux/pkg/entity"
)

// getProjected runs Get's narrow-column variant. Plain names select from
// the entity's table; a dotted "relation.property" path joins the to-one
// relationship's table and surfaces the property under its dotted name.
func (s *Store[T]) getProjected(ctx context.Context, sess *connector.Session, lookupCol string, key any, fields []string) (map[string]any, error) {
	m := s.mapping
	d := s.conn.Dialect()

	base := sess.QualifyTable(m.Table)
	baseAlias := d.QuoteIdentifier("t0")

	type joined struct {
		alias string
		rel   *entity.Rel
	}
	joins := make(map[string]joined)

	var selects []string
	for _, field := range fields {
		relName, prop, dotted := strings.Cut(field, ".")
		if !dotted {
			col, err := m.Column(field)
			if err != nil {
				return nil, err
			}
			selects = append(selects, fmt.Sprintf("%s.%s AS %s",
				baseAlias, d.QuoteIdentifier(col.Name), d.QuoteIdentifier(col.Name)))
			continue
		}

		j, ok := joins[relName]
		if !ok {
			rel, found := s.relByName(relName)
			if !found || rel.ToMany {
				return nil, fmt.Errorf("%w: no to-one relationship %q on %s",
					apperrors.ErrUnknownField, relName, m.Table)
			}
			j = joined{alias: d.QuoteIdentifier(fmt.Sprintf("t%d", len(joins)+1)), rel: rel}
			joins[relName] = j
		}

		target, err := entity.Of(j.rel.Target)
		if err != nil {
			return nil, err
		}
		col, err := target.Column(prop)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf("%s.%s AS %s",
			j.alias, d.QuoteIdentifier(col.Name), d.QuoteIdentifier(field)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s AS %s", strings.Join(selects, ", "), base, baseAlias)
	for _, j := range joins {
		target, err := entity.Of(j.rel.Target)
		if err != nil {
			return nil, err
		}
		if target.PK == nil {
			return nil, fmt.Errorf("crud: relationship target %s has no primary key", target.Table)
		}
		fmt.Fprintf(&sb, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			sess.QualifyTable(target.Table), j.alias,
			baseAlias, d.QuoteIdentifier(j.rel.FK),
			j.alias, d.QuoteIdentifier(target.PK.Name))
	}
	fmt.Fprintf(&sb, " WHERE %s.%s = %s", baseAlias, d.QuoteIdentifier(lookupCol), d.Placeholder(1))

	rows, err := sess.QueryContext(ctx, sb.String(), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results, err := entity.RowsToMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s %s=%v", apperrors.ErrNotFound, m.Table, lookupCol, key)
	}
	return results[0], nil
}

// relByName matches a relationship by the snake_cased form used in dotted
// paths and serialized output.
func (s *Store[T]) relByName(name string) (*entity.Rel, bool) {
	for i := range s.mapping.Rels {
		rel := &s.mapping.Rels[i]
		if strings.EqualFold(strings.ReplaceAll(rel.Field, "_", ""), strings.ReplaceAll(name, "_", "")) {
			return rel, true
		}
	}
	return nil, false
}

// loadRelations populates e's relationship fields, one level deep: to-one
// fields load the row the local foreign key points at, to-many fields load
// every row whose foreign key points back.
func (s *Store[T]) loadRelations(ctx context.Context, sess *connector.Session, e *T) error {
	m := s.mapping
	ev := reflect.ValueOf(e).Elem()

	for i := range m.Rels {
		rel := &m.Rels[i]
		target, err := entity.Of(rel.Target)
		if err != nil {
			return err
		}
		if rel.ToMany {
			if err := s.loadToMany(ctx, sess, ev, rel, target); err != nil {
				return err
			}
			continue
		}
		if err := s.loadToOne(ctx, sess, ev, rel, target); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store[T]) loadToOne(ctx context.Context, sess *connector.Session, ev reflect.Value, rel *entity.Rel, target *entity.Mapping) error {
	m := s.mapping
	fkCol, err := m.Column(rel.FK)
	if err != nil {
		return err
	}
	if target.PK == nil {
		return fmt.Errorf("crud: relationship target %s has no primary key", target.Table)
	}

	// only a nil pointer means "no relation"; a zero key is a valid key
	fk := ev.FieldByIndex(fkCol.Index)
	if fk.Kind() == reflect.Pointer {
		if fk.IsNil() {
			return nil
		}
		fk = fk.Elem()
	}

	row := reflect.New(rel.Target)
	err = s.queryRelated(ctx, sess, target, target.PK.Name, fk.Interface(),
		func(rows *sql.Rows) error {
			return entity.ScanRow(rows, row.Interface())
		}, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	field := ev.FieldByIndex(rel.Index)
	if field.Kind() == reflect.Pointer {
		field.Set(row)
	} else {
		field.Set(row.Elem())
	}
	return nil
}

func (s *Store[T]) loadToMany(ctx context.Context, sess *connector.Session, ev reflect.Value, rel *entity.Rel, target *entity.Mapping) error {
	m := s.mapping
	if m.PK == nil {
		return fmt.Errorf("crud: %s has no primary key for a to-many relationship", m.Table)
	}
	if _, err := target.Column(rel.FK); err != nil {
		return err
	}

	pk := ev.FieldByIndex(m.PK.Index)
	field := ev.FieldByIndex(rel.Index)
	slice := reflect.MakeSlice(field.Type(), 0, 4)

	err := s.queryRelated(ctx, sess, target, rel.FK, pk.Interface(),
		func(rows *sql.Rows) error {
			row := reflect.New(rel.Target)
			if err := entity.ScanRow(rows, row.Interface()); err != nil {
				return err
			}
			elem := row.Elem()
			if field.Type().Elem().Kind() == reflect.Pointer {
				slice = reflect.Append(slice, row)
			} else {
				slice = reflect.Append(slice, elem)
			}
			return nil
		}, false)
	if err != nil {
		return err
	}
	field.Set(slice)
	return nil
}

// queryRelated selects a relationship target's full column set filtered on
// one column. perRow runs for each row; with single set, missing rows
// surface as sql.ErrNoRows.
func (s *Store[T]) queryRelated(ctx context.Context, sess *connector.Session, target *entity.Mapping, filterCol string, filterVal any, perRow func(*sql.Rows) error, single bool) error {
	d := s.conn.Dialect()

	cols := target.ColumnNames(true)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(quoted, ", "), sess.QualifyTable(target.Table),
		d.QuoteIdentifier(filterCol), d.Placeholder(1))

	rows, err := sess.QueryContext(ctx, query, filterVal)
	if err != nil {
		return err
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		found = true
		if err := perRow(rows); err != nil {
			return err
		}
		if single {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if single && !found {
		return sql.ErrNoRows
	}
	return nil
}
