package querybind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
	"github.com/fathomdata/sqlmux/pkg/dialect"
	"github.com/fathomdata/sqlmux/pkg/entity"
)

type account struct {
	ID     int64   `db:"id,pk,auto"`
	Name   string  `db:"name"`
	Region string  `db:"region"`
	Spend  float64 `db:"spend"`
	Notes  *string `db:"notes"`
}

func mustMapping(t *testing.T) *entity.Mapping {
	t.Helper()
	m, err := entity.For[account]()
	require.NoError(t, err)
	return m
}

func mustDialect(t *testing.T, kind string) dialect.Dialect {
	t.Helper()
	d, err := dialect.Get(kind)
	require.NoError(t, err)
	return d
}

func TestBind_Postgres(t *testing.T) {
	m := mustMapping(t)
	pg := mustDialect(t, "postgres")

	clause, err := Bind(m, pg, Params{
		Filters: []Filter{
			Eq("region", "emea"),
			Where("spend", OpGte, 100.0),
			Where("notes", OpIsNull, nil),
		},
		Sorts: []Sort{Desc("spend"), Asc("name")},
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, `"region" = $1 AND "spend" >= $2 AND "notes" IS NULL`, clause.Where)
	assert.Equal(t, []any{"emea", 100.0}, clause.Args)
	assert.Equal(t, `"spend" DESC, "name" ASC`, clause.OrderBy)
}

func TestBind_ArgOffset(t *testing.T) {
	m := mustMapping(t)
	pg := mustDialect(t, "postgres")

	clause, err := Bind(m, pg, Params{Filters: []Filter{Eq("name", "acme")}}, 2)
	require.NoError(t, err)
	assert.Equal(t, `"name" = $3`, clause.Where)
}

func TestBind_In(t *testing.T) {
	m := mustMapping(t)
	lite := mustDialect(t, "sqlite")

	clause, err := Bind(m, lite, Params{
		Filters: []Filter{Where("region", OpIn, []string{"emea", "apac"})},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, `"region" IN (?, ?)`, clause.Where)
	assert.Equal(t, []any{"emea", "apac"}, clause.Args)

	_, err = Bind(m, lite, Params{
		Filters: []Filter{Where("region", OpIn, "emea")},
	}, 0)
	assert.Error(t, err)

	_, err = Bind(m, lite, Params{
		Filters: []Filter{Where("region", OpIn, []string{})},
	}, 0)
	assert.Error(t, err)
}

func TestBind_UnknownField(t *testing.T) {
	m := mustMapping(t)
	pg := mustDialect(t, "postgres")

	_, err := Bind(m, pg, Params{Filters: []Filter{Eq("nope", 1)}}, 0)
	require.ErrorIs(t, err, apperrors.ErrUnknownField)

	_, err = Bind(m, pg, Params{Sorts: []Sort{Asc("nope")}}, 0)
	require.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestBind_UnsupportedOp(t *testing.T) {
	m := mustMapping(t)
	pg := mustDialect(t, "postgres")

	_, err := Bind(m, pg, Params{Filters: []Filter{Where("name", Op("regex"), "x")}}, 0)
	assert.Error(t, err)
}

func TestBind_Empty(t *testing.T) {
	m := mustMapping(t)
	pg := mustDialect(t, "postgres")

	clause, err := Bind(m, pg, Params{}, 0)
	require.NoError(t, err)
	assert.Empty(t, clause.Where)
	assert.Empty(t, clause.OrderBy)
	assert.Empty(t, clause.Args)
	assert.True(t, Params{}.Empty())
}
