package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
)

type Author struct {
	ID    int64  `db:"id,pk,auto"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Books []Book `rel:"fk=author_id"`
}

type Book struct {
	ID          int64      `db:"id,pk,auto"`
	Title       string     `db:"title"`
	AuthorID    int64      `db:"author_id"`
	PublishedAt time.Time  `db:"published_at"`
	RetiredAt   *time.Time `db:"retired_at"`
	Author      *Author    `rel:"fk=author_id"`
}

type LineItem struct {
	ID  int64 `db:"id,pk,auto"`
	Qty int   `db:"qty"`
}

type legacyRecord struct {
	Code string `db:"code,pk"`
}

func (legacyRecord) TableName() string { return "legacy" }

func TestMapping_TableNames(t *testing.T) {
	authors, err := For[Author]()
	require.NoError(t, err)
	assert.Equal(t, "authors", authors.Table)

	items, err := For[LineItem]()
	require.NoError(t, err)
	assert.Equal(t, "line_items", items.Table)

	legacy, err := For[legacyRecord]()
	require.NoError(t, err)
	assert.Equal(t, "legacy", legacy.Table)
}

func TestMapping_Columns(t *testing.T) {
	m, err := For[Book]()
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "title", "author_id", "published_at", "retired_at"},
		m.ColumnNames(true))
	// the auto pk is excluded from the insert column list
	assert.Equal(t, []string{"title", "author_id", "published_at", "retired_at"},
		m.ColumnNames(false))

	require.NotNil(t, m.PK)
	assert.Equal(t, "id", m.PK.Name)
	assert.True(t, m.PK.Auto)

	col, err := m.Column("title")
	require.NoError(t, err)
	assert.Equal(t, "Title", col.Field)

	_, err = m.Column("nope")
	require.ErrorIs(t, err, apperrors.ErrUnknownField)
	assert.False(t, m.HasColumn("nope"))
}

func TestMapping_Rels(t *testing.T) {
	books, err := For[Book]()
	require.NoError(t, err)
	rel, ok := books.Rel("Author")
	require.True(t, ok)
	assert.False(t, rel.ToMany)
	assert.Equal(t, "author_id", rel.FK)
	assert.Equal(t, "Author", rel.Target.Name())

	authors, err := For[Author]()
	require.NoError(t, err)
	rel, ok = authors.Rel("Books")
	require.True(t, ok)
	assert.True(t, rel.ToMany)
	assert.Equal(t, "author_id", rel.FK)
}

func TestMapping_Values(t *testing.T) {
	m, err := For[Author]()
	require.NoError(t, err)

	a := Author{ID: 7, Name: "Ada", Email: "ada@example.com"}
	vals, err := m.Values(&a, []string{"name", "email"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Ada", "ada@example.com"}, vals)

	_, err = m.Values(a, []string{"nope"})
	require.ErrorIs(t, err, apperrors.ErrUnknownField)

	pk, err := m.PrimaryKey(a)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pk)

	require.NoError(t, m.SetPrimaryKey(&a, 42))
	assert.Equal(t, int64(42), a.ID)
	assert.Error(t, m.SetPrimaryKey(a, 42))
}

func TestMapping_PrimaryKeyTarget(t *testing.T) {
	m, err := For[legacyRecord]()
	require.NoError(t, err)

	var r legacyRecord
	target, err := m.PrimaryKeyTarget(&r)
	require.NoError(t, err)

	// a db-returned key lands in the field's own type, string keys included
	ptr, ok := target.(*string)
	require.True(t, ok)
	*ptr = "A-100"
	assert.Equal(t, "A-100", r.Code)

	_, err = m.PrimaryKeyTarget(r)
	assert.Error(t, err)
}

func TestMapping_Invalid(t *testing.T) {
	type noColumns struct {
		hidden string
	}
	_, err := For[noColumns]()
	assert.Error(t, err)

	type twoKeys struct {
		A int64 `db:"a,pk"`
		B int64 `db:"b,pk"`
	}
	_, err = For[twoKeys]()
	assert.Error(t, err)

	type badRel struct {
		ID   int64  `db:"id,pk"`
		Next string `rel:"fk=next_id"`
	}
	_, err = For[badRel]()
	assert.Error(t, err)
}
