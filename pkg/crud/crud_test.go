package crud

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
	"github.com/fathomdata/sqlmux/pkg/connector"
	"github.com/fathomdata/sqlmux/pkg/entity"
	"github.com/fathomdata/sqlmux/pkg/querybind"
	"github.com/fathomdata/sqlmux/pkg/testhelpers"
)

type author struct {
	ID    int64  `db:"id,pk,auto"`
	Name  string `db:"name"`
	Email string `db:"email" ddl:"TEXT NOT NULL UNIQUE"`
	Books []book `rel:"fk=author_id"`
}

type book struct {
	ID       int64     `db:"id,pk,auto"`
	Title    string    `db:"title"`
	Genre    string    `db:"genre"`
	AuthorID int64     `db:"author_id"`
	Rating   float64   `db:"rating"`
	AddedAt  time.Time `db:"added_at"`
	Author   *author   `rel:"fk=author_id"`
}

func newStores(t *testing.T, names ...string) (*connector.Connector, *Store[author], *Store[book]) {
	t.Helper()
	am, err := entity.For[author]()
	require.NoError(t, err)
	bm, err := entity.For[book]()
	require.NoError(t, err)

	c := testhelpers.NewConnectorWithTables(t, []*entity.Mapping{am, bm}, names...)

	authors, err := NewStore[author](c, zaptest.NewLogger(t))
	require.NoError(t, err)
	books, err := NewStore[book](c, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c, authors, books
}

func seedAuthor(t *testing.T, authors *Store[author], name, email string) int64 {
	t.Helper()
	a := author{Name: name, Email: email}
	require.NoError(t, authors.Create(context.Background(), &a, ReturnID()))
	require.NotZero(t, a.ID)
	return a.ID
}

func TestCreate_ReturnID(t *testing.T) {
	_, authors, _ := newStores(t)

	first := seedAuthor(t, authors, "Ada", "ada@example.com")
	second := seedAuthor(t, authors, "Grace", "grace@example.com")
	assert.Greater(t, second, first)
}

func TestCreate_WithoutReturnID(t *testing.T) {
	_, authors, _ := newStores(t)

	a := author{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, authors.Create(context.Background(), &a))
	assert.Zero(t, a.ID)

	found, err := authors.Exists(context.Background(), "ada@example.com", ByField("email"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCreate_Conflict(t *testing.T) {
	_, authors, _ := newStores(t)
	seedAuthor(t, authors, "Ada", "ada@example.com")

	dup := author{Name: "Imposter", Email: "ada@example.com"}
	err := authors.Create(context.Background(), &dup)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestGet_ByPrimaryKey(t *testing.T) {
	_, authors, _ := newStores(t)
	id := seedAuthor(t, authors, "Ada", "ada@example.com")

	got, err := authors.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got["name"])
	assert.Equal(t, "ada@example.com", got["email"])
	assert.Equal(t, id, got["id"])
}

func TestGet_ByField(t *testing.T) {
	_, authors, _ := newStores(t)
	id := seedAuthor(t, authors, "Ada", "ada@example.com")

	got, err := authors.Get(context.Background(), "ada@example.com", ByField("email"))
	require.NoError(t, err)
	assert.Equal(t, id, got["id"])

	_, err = authors.Get(context.Background(), "x", ByField("bogus"))
	require.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestGet_NotFound(t *testing.T) {
	_, authors, _ := newStores(t)
	_, err := authors.Get(context.Background(), int64(4040))
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGet_Projection(t *testing.T) {
	_, authors, _ := newStores(t)
	seedAuthor(t, authors, "Ada", "ada@example.com")

	got, err := authors.Get(context.Background(), "ada@example.com",
		ByField("email"), Fields("name"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada"}, got)
}

func TestGet_DottedProjection(t *testing.T) {
	_, authors, books := newStores(t)
	id := seedAuthor(t, authors, "Ada", "ada@example.com")

	b := book{Title: "Notes", Genre: "science", AuthorID: id, Rating: 4.5, AddedAt: time.Now().UTC()}
	require.NoError(t, books.Create(context.Background(), &b, ReturnID()))

	got, err := books.Get(context.Background(), "Notes",
		ByField("title"), Fields("title", "author.name", "author.email"))
	require.NoError(t, err)
	assert.Equal(t, "Notes", got["title"])
	assert.Equal(t, "Ada", got["author.name"])
	assert.Equal(t, "ada@example.com", got["author.email"])

	_, err = books.Get(context.Background(), "Notes",
		ByField("title"), Fields("bogus.name"))
	require.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestGet_Recurse(t *testing.T) {
	_, authors, books := newStores(t)
	id := seedAuthor(t, authors, "Ada", "ada@example.com")

	added := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	b := book{Title: "Notes", Genre: "science", AuthorID: id, Rating: 4.5, AddedAt: added}
	require.NoError(t, books.Create(context.Background(), &b, ReturnID()))

	got, err := books.Get(context.Background(), b.ID, Recurse())
	require.NoError(t, err)

	nested, ok := got["author"].(map[string]any)
	require.True(t, ok, "author not recursed: %v", got)
	assert.Equal(t, "Ada", nested["name"])

	ts, err := time.Parse(time.RFC3339, got["added_at"].(string))
	require.NoError(t, err)
	assert.True(t, ts.Equal(added), "got %v want %v", ts, added)

	// the other direction: the author's to-many side loads its books
	gotAuthor, err := authors.Get(context.Background(), id, Recurse())
	require.NoError(t, err)
	nestedBooks, ok := gotAuthor["books"].([]map[string]any)
	require.True(t, ok, "books not recursed: %v", gotAuthor)
	require.Len(t, nestedBooks, 1)
	assert.Equal(t, "Notes", nestedBooks[0]["title"])
}

func TestGet_RecurseZeroForeignKey(t *testing.T) {
	c, _, books := newStores(t)

	// a row keyed 0 is a real row, not an absent relation
	_, err := c.ExecuteStatement(context.Background(), "",
		"INSERT INTO authors (id, name, email) VALUES (?, ?, ?)",
		int64(0), "Ada", "ada@example.com")
	require.NoError(t, err)

	b := book{Title: "Notes", Genre: "science", AuthorID: 0, AddedAt: time.Now().UTC()}
	require.NoError(t, books.Create(context.Background(), &b, ReturnID()))

	got, err := books.Get(context.Background(), b.ID, Recurse())
	require.NoError(t, err)
	nested, ok := got["author"].(map[string]any)
	require.True(t, ok, "author not recursed: %v", got)
	assert.Equal(t, "Ada", nested["name"])
}

func TestExists(t *testing.T) {
	_, authors, _ := newStores(t)
	id := seedAuthor(t, authors, "Ada", "ada@example.com")

	found, err := authors.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = authors.Exists(context.Background(), int64(4040))
	require.NoError(t, err)
	assert.False(t, found)
}

func seedBooks(t *testing.T, authors *Store[author], books *Store[book], n int) int64 {
	t.Helper()
	id := seedAuthor(t, authors, "Ada", "ada@example.com")
	for i := 0; i < n; i++ {
		genre := "science"
		if i%2 == 1 {
			genre = "fiction"
		}
		b := book{
			Title:    string(rune('A' + i)),
			Genre:    genre,
			AuthorID: id,
			Rating:   float64(i),
			AddedAt:  time.Now().UTC(),
		}
		require.NoError(t, books.Create(context.Background(), &b))
	}
	return id
}

func TestList_Unpaginated(t *testing.T) {
	_, authors, books := newStores(t)
	seedBooks(t, authors, books, 5)

	page, err := books.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Elements, 5)
}

func TestList_FilterAndSort(t *testing.T) {
	_, authors, books := newStores(t)
	seedBooks(t, authors, books, 6)

	page, err := books.List(context.Background(),
		WithFilter(querybind.Eq("genre", "fiction")),
		SortBy(querybind.Desc("rating")))
	require.NoError(t, err)
	require.Len(t, page.Elements, 3)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 5.0, page.Elements[0]["rating"])
	assert.Equal(t, 1.0, page.Elements[2]["rating"])
}

func TestList_Pagination(t *testing.T) {
	_, authors, books := newStores(t)
	seedBooks(t, authors, books, 7)

	page, err := books.List(context.Background(),
		SortBy(querybind.Asc("rating")), Limit(3), Offset(3))
	require.NoError(t, err)
	// total reflects the whole filtered set, not the window
	assert.Equal(t, 7, page.Total)
	require.Len(t, page.Elements, 3)
	assert.Equal(t, 3.0, page.Elements[0]["rating"])

	// offset without an explicit limit keeps the default cap
	page, err = books.List(context.Background(),
		SortBy(querybind.Asc("rating")), Offset(5))
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Len(t, page.Elements, 2)
}

func TestList_LimitBounds(t *testing.T) {
	_, _, books := newStores(t)

	_, err := books.List(context.Background(), Limit(MaxListLimit+1))
	require.ErrorIs(t, err, apperrors.ErrLimitOutOfBounds)

	_, err = books.List(context.Background(), Limit(0))
	require.ErrorIs(t, err, apperrors.ErrLimitOutOfBounds)

	_, err = books.List(context.Background(), Limit(-3))
	require.ErrorIs(t, err, apperrors.ErrLimitOutOfBounds)
}

func TestList_Projection(t *testing.T) {
	_, authors, books := newStores(t)
	seedBooks(t, authors, books, 2)

	page, err := books.List(context.Background(), Fields("title", "genre"))
	require.NoError(t, err)
	require.Len(t, page.Elements, 2)
	assert.Len(t, page.Elements[0], 2)
	assert.Contains(t, page.Elements[0], "title")

	_, err = books.List(context.Background(), Fields("author.name"))
	require.ErrorIs(t, err, apperrors.ErrUnknownField)

	_, err = books.List(context.Background(), Fields("bogus"))
	require.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestList_UnknownFilterField(t *testing.T) {
	_, _, books := newStores(t)
	_, err := books.List(context.Background(), WithFilter(querybind.Eq("bogus", 1)))
	require.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestUpdate(t *testing.T) {
	_, authors, _ := newStores(t)
	id := seedAuthor(t, authors, "Ada", "ada@example.com")

	err := authors.Update(context.Background(), id, map[string]any{"name": "Ada L."})
	require.NoError(t, err)

	got, err := authors.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got["name"])
}

func TestUpdate_UnknownFields(t *testing.T) {
	_, authors, _ := newStores(t)
	id := seedAuthor(t, authors, "Ada", "ada@example.com")

	// lax by default: unknown and db-assigned columns are skipped
	err := authors.Update(context.Background(), id, map[string]any{
		"name":  "Ada L.",
		"id":    int64(999),
		"bogus": "x",
	})
	require.NoError(t, err)

	got, err := authors.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got["name"])

	err = authors.Update(context.Background(), id,
		map[string]any{"bogus": "x"}, Strict())
	require.ErrorIs(t, err, apperrors.ErrUnknownField)

	err = authors.Update(context.Background(), id,
		map[string]any{"id": int64(999)}, Strict())
	require.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestUpdate_NotFound(t *testing.T) {
	_, authors, _ := newStores(t)
	err := authors.Update(context.Background(), int64(4040), map[string]any{"name": "x"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDelete_Idempotent(t *testing.T) {
	_, authors, _ := newStores(t)
	id := seedAuthor(t, authors, "Ada", "ada@example.com")

	require.NoError(t, authors.Delete(context.Background(), id))
	_, err := authors.Get(context.Background(), id)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	// deleting what is already gone is still success
	require.NoError(t, authors.Delete(context.Background(), id))
}

func TestWithSession_JoinsCallerTransaction(t *testing.T) {
	c, authors, books := newStores(t)

	err := c.WithSession(context.Background(), connector.Target{}, func(s *connector.Session) error {
		a := author{Name: "Ada", Email: "ada@example.com"}
		if err := authors.Create(context.Background(), &a, WithSession(s), ReturnID()); err != nil {
			return err
		}
		b := book{Title: "Notes", Genre: "science", AuthorID: a.ID, AddedAt: time.Now().UTC()}
		return books.Create(context.Background(), &b, WithSession(s))
	})
	require.NoError(t, err)

	page, err := books.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestWithSession_RollbackDiscardsStoreWrites(t *testing.T) {
	c, authors, _ := newStores(t)

	s, err := c.NewSession(context.Background(), connector.Target{})
	require.NoError(t, err)

	a := author{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, authors.Create(context.Background(), &a, WithSession(s)))
	require.NoError(t, s.Rollback())

	found, err := authors.Exists(context.Background(), "ada@example.com", ByField("email"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOnDB_TargetsEngine(t *testing.T) {
	_, authors, _ := newStores(t, "main", "audit")

	seedAuthor(t, authors, "Ada", "ada@example.com")

	a := author{Name: "Grace", Email: "grace@example.com"}
	require.NoError(t, authors.Create(context.Background(), &a, OnDB("audit")))

	// each engine only sees its own rows
	onMain, err := authors.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, onMain.Total)

	onAudit, err := authors.List(context.Background(), OnDB("audit"))
	require.NoError(t, err)
	assert.Equal(t, 1, onAudit.Total)
	assert.Equal(t, "Grace", onAudit.Elements[0]["name"])
}
