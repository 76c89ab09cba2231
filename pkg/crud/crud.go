// Package crud provides generic persistence helpers over mapped entity
// types. A Store wraps one connector and one entity mapping; every method
// either joins a caller-provided session or wraps itself in its own
// transactional scope.
package crud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
	"github.com/fathomdata/sqlmux/pkg/connector"
	"github.com/fathomdata/sqlmux/pkg/entity"
	"github.com/fathomdata/sqlmux/pkg/logging"
	"github.com/fathomdata/sqlmux/pkg/querybind"
)

// MaxListLimit bounds List page sizes. Requests beyond it are refused, not
// clamped.
const MaxListLimit = 1000

// Page is one List result: the pre-pagination total and the serialized
// elements of the requested window.
type Page struct {
	Total    int
	Elements []map[string]any
}

// Store provides Create/Get/Exists/List/Update/Delete for one entity type.
type Store[T any] struct {
	conn    *connector.Connector
	mapping *entity.Mapping
	logger  *zap.Logger
}

// NewStore derives T's mapping and binds it to a connector.
func NewStore[T any](c *connector.Connector, logger *zap.Logger) (*Store[T], error) {
	m, err := entity.For[T]()
	if err != nil {
		return nil, err
	}
	return &Store[T]{
		conn:    c,
		mapping: m,
		logger:  logging.OrNop(logger).With(zap.String("table", m.Table)),
	}, nil
}

// Mapping exposes the store's entity mapping, mainly for table creation.
func (s *Store[T]) Mapping() *entity.Mapping { return s.mapping }

// run executes fn inside the caller's session when one was injected,
// otherwise inside a fresh scope on the targeted engine and schema.
func (s *Store[T]) run(ctx context.Context, o callOpts, fn func(*connector.Session) error) error {
	if o.session != nil {
		return fn(o.session)
	}
	return s.conn.WithSession(ctx, connector.Target{DB: o.db, Schema: o.schema}, fn)
}

// Create inserts the entity. With ReturnID the db-assigned key is written
// back onto it. Unique violations come back as ErrConflict.
func (s *Store[T]) Create(ctx context.Context, e *T, opts ...Option) error {
	o := applyOptions(opts)
	m := s.mapping
	d := s.conn.Dialect()

	cols := m.ColumnNames(false)
	values, err := m.Values(e, cols)
	if err != nil {
		return err
	}

	return s.run(ctx, o, func(sess *connector.Session) error {
		table := sess.QualifyTable(m.Table)
		pkCol := ""
		if m.PK != nil {
			pkCol = m.PK.Name
		}
		query, useLastID := d.InsertSQL(table, cols, pkCol, o.returnID && m.PK != nil)

		if o.returnID && m.PK != nil && !useLastID {
			target, err := m.PrimaryKeyTarget(e)
			if err != nil {
				return err
			}
			row, err := sess.QueryRowContext(ctx, query, values...)
			if err != nil {
				return err
			}
			if err := row.Scan(target); err != nil {
				return s.classify(err)
			}
			return nil
		}

		res, err := sess.ExecContext(ctx, query, values...)
		if err != nil {
			return s.classify(err)
		}
		if o.returnID && m.PK != nil && useLastID {
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("read generated key: %w", err)
			}
			return m.SetPrimaryKey(e, id)
		}
		return nil
	})
}

// Get fetches one entity as a serialized mapping, by primary key or, with
// ByField, by an arbitrary column. A Fields projection narrows the result
// and may traverse to-one relationships with dotted paths. Recurse loads
// relationship fields before serialization. No row means ErrNotFound.
func (s *Store[T]) Get(ctx context.Context, key any, opts ...Option) (map[string]any, error) {
	o := applyOptions(opts)

	lookupCol, err := s.lookupColumn(o)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	err = s.run(ctx, o, func(sess *connector.Session) error {
		if len(o.fields) > 0 {
			row, err := s.getProjected(ctx, sess, lookupCol, key, o.fields)
			if err != nil {
				return err
			}
			result = row
			return nil
		}

		e, err := s.getEntity(ctx, sess, lookupCol, key)
		if err != nil {
			return err
		}
		if o.recurse {
			if err := s.loadRelations(ctx, sess, e); err != nil {
				return err
			}
			result, err = entity.ToMapDeep(e)
			return err
		}
		result, err = entity.ToMap(e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Exists probes for a row without the not-found error.
func (s *Store[T]) Exists(ctx context.Context, key any, opts ...Option) (bool, error) {
	o := applyOptions(opts)

	lookupCol, err := s.lookupColumn(o)
	if err != nil {
		return false, err
	}

	d := s.conn.Dialect()
	var found bool
	err = s.run(ctx, o, func(sess *connector.Session) error {
		query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s",
			sess.QualifyTable(s.mapping.Table), d.QuoteIdentifier(lookupCol), d.Placeholder(1))
		row, err := sess.QueryRowContext(ctx, query, key)
		if err != nil {
			return err
		}
		var one int
		switch err := row.Scan(&one); {
		case err == nil:
			found = true
		case errors.Is(err, sql.ErrNoRows):
			found = false
		default:
			return err
		}
		return nil
	})
	return found, err
}

// List returns a page of serialized entities. Filters and sorts come from
// querybind parameters; limit defaults to MaxListLimit and anything outside
// [1, MaxListLimit] is ErrLimitOutOfBounds. When pagination was requested
// the total is counted before the window is applied; otherwise it is the
// page length.
func (s *Store[T]) List(ctx context.Context, opts ...Option) (Page, error) {
	o := applyOptions(opts)
	m := s.mapping
	d := s.conn.Dialect()

	limit := MaxListLimit
	if o.paginated && o.limit != -1 {
		if o.limit < 1 || o.limit > MaxListLimit {
			return Page{}, fmt.Errorf("%w: limit %d not in [1, %d]",
				apperrors.ErrLimitOutOfBounds, o.limit, MaxListLimit)
		}
		limit = o.limit
	}
	offset := o.offset
	if offset < 0 {
		offset = 0
	}

	selectCols := m.ColumnNames(true)
	if len(o.fields) > 0 {
		selectCols = o.fields
	}
	for _, col := range selectCols {
		if strings.Contains(col, ".") {
			return Page{}, fmt.Errorf("%w: dotted path %q is only supported on Get", apperrors.ErrUnknownField, col)
		}
		if _, err := m.Column(col); err != nil {
			return Page{}, err
		}
	}

	clause, err := querybind.Bind(m, d, o.params, 0)
	if err != nil {
		return Page{}, err
	}

	var page Page
	err = s.run(ctx, o, func(sess *connector.Session) error {
		table := sess.QualifyTable(m.Table)

		quoted := make([]string, len(selectCols))
		for i, c := range selectCols {
			quoted[i] = d.QuoteIdentifier(c)
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(quoted, ", "), table)
		if clause.Where != "" {
			sb.WriteString(" WHERE " + clause.Where)
		}
		if clause.OrderBy != "" {
			sb.WriteString(" ORDER BY " + clause.OrderBy)
		}
		if window := d.LimitOffset(limit, offset, clause.OrderBy != ""); window != "" {
			sb.WriteString(" " + window)
		}

		rows, err := sess.QueryContext(ctx, sb.String(), clause.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		if len(o.fields) > 0 {
			page.Elements, err = entity.RowsToMaps(rows)
			if err != nil {
				return err
			}
		} else {
			for rows.Next() {
				var e T
				if err := entity.ScanRow(rows, &e); err != nil {
					return err
				}
				elem, err := entity.ToMap(&e)
				if err != nil {
					return err
				}
				page.Elements = append(page.Elements, elem)
			}
			if err := rows.Err(); err != nil {
				return err
			}
		}

		if o.paginated {
			countQuery := "SELECT COUNT(*) FROM " + table
			if clause.Where != "" {
				countQuery += " WHERE " + clause.Where
			}
			row, err := sess.QueryRowContext(ctx, countQuery, clause.Args...)
			if err != nil {
				return err
			}
			if err := row.Scan(&page.Total); err != nil {
				return err
			}
		} else {
			page.Total = len(page.Elements)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// Update sets the given columns on the row with the given primary key.
// Unknown or db-assigned columns are skipped, or refused with
// ErrUnknownField under Strict. A missing row is ErrNotFound. The update
// joins the surrounding transaction and never commits on its own when a
// session was injected.
func (s *Store[T]) Update(ctx context.Context, key any, fields map[string]any, opts ...Option) error {
	o := applyOptions(opts)
	m := s.mapping
	d := s.conn.Dialect()

	if m.PK == nil {
		return fmt.Errorf("crud: %s has no primary key", m.Table)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		setCols []string
		args    []any
	)
	for _, name := range names {
		col, err := m.Column(name)
		if err != nil || col.Auto {
			if o.strict {
				if err == nil {
					err = fmt.Errorf("%w: %q is db-assigned", apperrors.ErrUnknownField, name)
				}
				return err
			}
			continue
		}
		setCols = append(setCols, col.Name)
		args = append(args, fields[name])
	}

	return s.run(ctx, o, func(sess *connector.Session) error {
		table := sess.QualifyTable(m.Table)

		exists, err := s.existsInSession(ctx, sess, table, key)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s %v", apperrors.ErrNotFound, m.Table, key)
		}
		if len(setCols) == 0 {
			return nil
		}

		sets := make([]string, len(setCols))
		for i, c := range setCols {
			sets[i] = fmt.Sprintf("%s = %s", d.QuoteIdentifier(c), d.Placeholder(i+1))
		}
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			table, strings.Join(sets, ", "),
			d.QuoteIdentifier(m.PK.Name), d.Placeholder(len(setCols)+1))

		if _, err := sess.ExecContext(ctx, query, append(args, key)...); err != nil {
			return s.classify(err)
		}
		return nil
	})
}

// Delete removes the row with the given primary key. Deleting an absent row
// is success.
func (s *Store[T]) Delete(ctx context.Context, key any, opts ...Option) error {
	o := applyOptions(opts)
	m := s.mapping
	d := s.conn.Dialect()

	if m.PK == nil {
		return fmt.Errorf("crud: %s has no primary key", m.Table)
	}

	return s.run(ctx, o, func(sess *connector.Session) error {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			sess.QualifyTable(m.Table), d.QuoteIdentifier(m.PK.Name), d.Placeholder(1))
		_, err := sess.ExecContext(ctx, query, key)
		return err
	})
}

func (s *Store[T]) lookupColumn(o callOpts) (string, error) {
	if o.byField != "" {
		col, err := s.mapping.Column(o.byField)
		if err != nil {
			return "", err
		}
		return col.Name, nil
	}
	if s.mapping.PK == nil {
		return "", fmt.Errorf("crud: %s has no primary key", s.mapping.Table)
	}
	return s.mapping.PK.Name, nil
}

func (s *Store[T]) getEntity(ctx context.Context, sess *connector.Session, lookupCol string, key any) (*T, error) {
	m := s.mapping
	d := s.conn.Dialect()

	cols := m.ColumnNames(true)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(quoted, ", "), sess.QualifyTable(m.Table),
		d.QuoteIdentifier(lookupCol), d.Placeholder(1))

	rows, err := sess.QueryContext(ctx, query, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s=%v", apperrors.ErrNotFound, m.Table, lookupCol, key)
	}
	e := new(T)
	if err := entity.ScanRow(rows, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store[T]) existsInSession(ctx context.Context, sess *connector.Session, table string, key any) (bool, error) {
	d := s.conn.Dialect()
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s",
		table, d.QuoteIdentifier(s.mapping.PK.Name), d.Placeholder(1))
	row, err := sess.QueryRowContext(ctx, query, key)
	if err != nil {
		return false, err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// classify maps driver faults the store has sentinel errors for; anything
// else propagates untranslated.
func (s *Store[T]) classify(err error) error {
	if s.conn.Dialect().IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", apperrors.ErrConflict, err)
	}
	return err
}
