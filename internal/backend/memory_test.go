package backend

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirloom-restoration/workshop/internal/apperr"
)

type testRow struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	SortOrder int    `json:"sort_order"`
	Featured  bool   `json:"featured"`
}

func seed(t *testing.T, m *MemoryBackend, rows ...testRow) []testRow {
	t.Helper()
	out := make([]testRow, 0, len(rows))
	for _, r := range rows {
		var stored testRow
		require.NoError(t, m.Insert(context.Background(), "items", r, &stored))
		out = append(out, stored)
	}
	return out
}

func TestMemory_InsertAssignsID(t *testing.T) {
	m := NewMemory()
	rows := seed(t, m, testRow{Name: "chair"})

	assert.NotEmpty(t, rows[0].ID)
	assert.Equal(t, "chair", rows[0].Name)
}

func TestMemory_InsertDuplicateID(t *testing.T) {
	m := NewMemory()
	seed(t, m, testRow{ID: "a", Name: "chair"})

	err := m.Insert(context.Background(), "items", testRow{ID: "a", Name: "table"}, nil)
	assert.True(t, apperr.Is(err, apperr.CodeDatabase))
}

func TestMemory_SelectFiltersOrdersAndLimits(t *testing.T) {
	m := NewMemory()
	seed(t, m,
		testRow{Name: "c", Category: "chairs", SortOrder: 3},
		testRow{Name: "a", Category: "chairs", SortOrder: 1, Featured: true},
		testRow{Name: "t", Category: "tables", SortOrder: 2},
		testRow{Name: "b", Category: "chairs", SortOrder: 2},
	)

	var got []testRow
	err := m.Select(context.Background(), "items", Query{
		Eq:      map[string]string{"category": "chairs"},
		OrderBy: "sort_order",
		Limit:   2,
	}, &got)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)

	got = nil
	require.NoError(t, m.Select(context.Background(), "items", Query{
		Eq: map[string]string{"featured": "true"},
	}, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)

	got = nil
	require.NoError(t, m.Select(context.Background(), "items", Query{OrderBy: "sort_order", Desc: true}, &got))
	assert.Equal(t, "c", got[0].Name)
}

func TestMemory_SelectIn(t *testing.T) {
	m := NewMemory()
	rows := seed(t, m, testRow{Name: "x"}, testRow{Name: "y"}, testRow{Name: "z"})

	var got []testRow
	err := m.Select(context.Background(), "items", Query{
		In: map[string][]string{"id": {rows[0].ID, rows[2].ID}},
	}, &got)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemory_SelectEmptyTable(t *testing.T) {
	m := NewMemory()

	var got []testRow
	require.NoError(t, m.Select(context.Background(), "missing", Query{}, &got))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemory_UpdateAndDelete(t *testing.T) {
	m := NewMemory()
	rows := seed(t, m, testRow{Name: "chair", Category: "chairs"})
	ctx := context.Background()

	var updated testRow
	err := m.Update(ctx, "items", map[string]string{"id": rows[0].ID}, map[string]any{"name": "armchair"}, &updated)
	require.NoError(t, err)
	assert.Equal(t, "armchair", updated.Name)
	assert.Equal(t, "chairs", updated.Category)

	err = m.Update(ctx, "items", map[string]string{"id": "nope"}, map[string]any{"name": "x"}, nil)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	require.NoError(t, m.Delete(ctx, "items", map[string]string{"id": rows[0].ID}))
	var got []testRow
	require.NoError(t, m.Select(ctx, "items", Query{}, &got))
	assert.Empty(t, got)
}

func TestMemory_UpdateWhere(t *testing.T) {
	m := NewMemory()
	seed(t, m,
		testRow{Name: "chair", Category: "chairs"},
		testRow{Name: "stool", Category: "chairs"},
		testRow{Name: "chest", Category: "cases"},
	)
	ctx := context.Background()

	n, err := m.UpdateWhere(ctx, "items", Query{
		Eq:  map[string]string{"category": "chairs"},
		Neq: map[string]string{"name": "stool"},
	}, map[string]any{"name": "armchair"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var got []testRow
	require.NoError(t, m.Select(ctx, "items", Query{OrderBy: "name"}, &got))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"armchair", "chest", "stool"}, []string{got[0].Name, got[1].Name, got[2].Name})

	n, err = m.UpdateWhere(ctx, "items", Query{Eq: map[string]string{"category": "lamps"}}, map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemory_Storage(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	url, err := m.Upload(ctx, BucketImages, "portfolio/one.jpg", strings.NewReader("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "memory://images/portfolio/one.jpg", url)

	_, err = m.Upload(ctx, BucketImages, "team/two.jpg", strings.NewReader("jpeg"), "image/jpeg")
	require.NoError(t, err)

	objects, err := m.List(ctx, BucketImages, "portfolio/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "one.jpg", objects[0].Name)

	require.NoError(t, m.Remove(ctx, BucketImages, []string{"portfolio/one.jpg"}))
	objects, err = m.List(ctx, BucketImages, "portfolio/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestMemory_GetSession(t *testing.T) {
	m := NewMemory()
	m.AddSession("token-1", Session{UserID: "u1", Email: "owner@example.com", Role: "authenticated"})

	s, err := m.GetSession(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)

	_, err = m.GetSession(context.Background(), "other")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
}

func TestMemory_CancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []testRow
	assert.ErrorIs(t, m.Select(ctx, "items", Query{}, &got), context.Canceled)
}
