package query

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = NewSchema(
	Field{Name: "id", Column: "id", Path: "_id", Kind: KindID, Filterable: true, Sortable: true, Selectable: true},
	Field{Name: "title", Column: "title", Path: "title", Kind: KindString, Filterable: true, Sortable: true, Selectable: true},
	Field{Name: "status", Column: "status", Path: "status", Kind: KindEnum, Enum: []string{"reported", "resolved"}, Filterable: true, Sortable: true, Selectable: true},
	Field{Name: "score", Column: "score", Path: "meta.score", Kind: KindNumber, Filterable: true, Sortable: true},
	Field{Name: "flagged", Column: "flagged", Path: "meta.flagged", Kind: KindBool, Filterable: true},
	Field{Name: "createdAt", Column: "created_at", Path: "createdAt", Kind: KindTime, Filterable: true, Sortable: true, Selectable: true},
	Field{Name: "location.address", Column: "location_address", Path: "location.address", Kind: KindString, Filterable: true},
	Field{Name: "images", Column: "images", Path: "images", Kind: KindString, Selectable: true},
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := NewCompiler(testSchema, DefaultOptions())
	require.NoError(t, err)
	return c
}

func TestNewCompiler(t *testing.T) {
	t.Run("rejects bad limits", func(t *testing.T) {
		_, err := NewCompiler(testSchema, Options{DefaultLimit: 10, MaxLimit: 0})
		assert.Error(t, err)

		_, err = NewCompiler(testSchema, Options{DefaultLimit: 200, MaxLimit: 100})
		assert.Error(t, err)
	})

	t.Run("rejects unknown default sort", func(t *testing.T) {
		opts := DefaultOptions()
		opts.DefaultSort = "-nope"
		_, err := NewCompiler(testSchema, opts)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}

func TestCompile_Defaults(t *testing.T) {
	plan, err := newTestCompiler(t).Compile(map[string]string{})
	require.NoError(t, err)

	assert.Empty(t, plan.Filter.Terms)
	assert.Empty(t, plan.Select)
	assert.Equal(t, 1, plan.Page)
	assert.Equal(t, 10, plan.Limit)
	assert.Equal(t, 0, plan.Skip())
	require.Len(t, plan.Sort, 1)
	assert.Equal(t, "createdAt", plan.Sort[0].Field.Name)
	assert.True(t, plan.Sort[0].Desc)
}

func TestCompile_Filters(t *testing.T) {
	c := newTestCompiler(t)

	t.Run("equality and range", func(t *testing.T) {
		plan, err := c.Compile(map[string]string{
			"status":         "resolved",
			"createdAt[gte]": "2024-01-01",
			"score[lt]":      "0.5",
		})
		require.NoError(t, err)
		require.Len(t, plan.Filter.Terms, 3)

		// Keys are emitted in sorted order.
		created := plan.Filter.Terms[0].(Comparison)
		assert.Equal(t, "createdAt", created.Field.Name)
		assert.Equal(t, OpGte, created.Op)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), created.Value)

		score := plan.Filter.Terms[1].(Comparison)
		assert.Equal(t, OpLt, score.Op)
		assert.Equal(t, 0.5, score.Value)

		status := plan.Filter.Terms[2].(Comparison)
		assert.Equal(t, OpEq, status.Op)
		assert.Equal(t, "resolved", status.Value)
	})

	t.Run("explicit eq", func(t *testing.T) {
		plan, err := c.Compile(map[string]string{"title[eq]": "Pothole"})
		require.NoError(t, err)
		require.Len(t, plan.Filter.Terms, 1)
		assert.Equal(t, Comparison{Field: mustLookup(t, "title"), Op: OpEq, Value: "Pothole"}, plan.Filter.Terms[0])
	})

	t.Run("in list", func(t *testing.T) {
		plan, err := c.Compile(map[string]string{"status[in]": "reported, resolved,"})
		require.NoError(t, err)
		require.Len(t, plan.Filter.Terms, 1)
		in := plan.Filter.Terms[0].(In)
		assert.Equal(t, []any{"reported", "resolved"}, in.Values)
	})

	t.Run("typed values", func(t *testing.T) {
		id := uuid.New()
		plan, err := c.Compile(map[string]string{
			"id":      id.String(),
			"flagged": "true",
		})
		require.NoError(t, err)
		require.Len(t, plan.Filter.Terms, 2)
		assert.Equal(t, true, plan.Filter.Terms[0].(Comparison).Value)
		assert.Equal(t, id, plan.Filter.Terms[1].(Comparison).Value)
	})

	t.Run("dotted path", func(t *testing.T) {
		plan, err := c.Compile(map[string]string{"location.address": "Main St"})
		require.NoError(t, err)
		require.Len(t, plan.Filter.Terms, 1)
		assert.Equal(t, "location_address", plan.Filter.Terms[0].(Comparison).Field.Column)
	})

	t.Run("rfc3339 time", func(t *testing.T) {
		plan, err := c.Compile(map[string]string{"createdAt[lt]": "2024-03-01T10:00:00+02:00"})
		require.NoError(t, err)
		v := plan.Filter.Terms[0].(Comparison).Value.(time.Time)
		assert.Equal(t, time.UTC, v.Location())
		assert.Equal(t, 8, v.Hour())
	})
}

func TestCompile_Rejects(t *testing.T) {
	c := newTestCompiler(t)

	cases := map[string]map[string]string{
		"operator injection":       {"$where": "1"},
		"mongo operator in key":    {"status[$ne]": "resolved"},
		"unsupported operator":     {"status[ne]": "resolved"},
		"regex operator":           {"title[regex]": ".*"},
		"unknown field":            {"password": "x"},
		"broken brackets":          {"status][": "x"},
		"nested or":                {"$or[0][status]": "reported"},
		"double operator":          {"score[gt][lt]": "1"},
		"select-only field":        {"images": "a.jpg"},
		"bad enum":                 {"status": "open"},
		"bad number":               {"score[gt]": "abc"},
		"nan":                      {"score[gt]": "NaN"},
		"bad bool":                 {"flagged": "maybe"},
		"bad time":                 {"createdAt[gte]": "yesterday"},
		"bad id":                   {"id": "not-a-uuid"},
		"range on enum":            {"status[gt]": "reported"},
		"range on bool":            {"flagged[lt]": "true"},
		"empty in":                 {"status[in]": " , "},
		"unknown sort":             {"sort": "-password"},
		"sort on unsortable field": {"sort": "images"},
		"unknown select":           {"select": "title,password"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			plan, err := c.Compile(params)
			assert.ErrorIs(t, err, ErrInvalidQuery)
			assert.Nil(t, plan)
		})
	}

	t.Run("too many in values", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxInValues = 2
		small, err := NewCompiler(testSchema, opts)
		require.NoError(t, err)
		_, err = small.Compile(map[string]string{"status[in]": "reported,resolved,reported"})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("value too long", func(t *testing.T) {
		long := make([]byte, maxValueLen+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err := c.Compile(map[string]string{"title": string(long)})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}

func TestCompile_OnlyClosedOperators(t *testing.T) {
	plan, err := newTestCompiler(t).Compile(map[string]string{
		"status[in]":           "reported",
		"score[gte]":           "1",
		"score[lte]":           "9",
		"createdAt[gt]":        "2024-01-01",
		"createdAt[lt]":        "2025-01-01",
		"title":                "x",
		"flagged":              "false",
		"location.address[eq]": "Main",
	})
	require.NoError(t, err)

	allowed := map[Op]bool{OpEq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true}
	var nodes int
	Walk(plan.Filter, func(p Predicate) {
		nodes++
		switch n := p.(type) {
		case And:
		case Comparison:
			assert.True(t, allowed[n.Op], "unexpected operator %q", n.Op)
			_, known := testSchema.Lookup(n.Field.Name)
			assert.True(t, known)
		case In:
			_, known := testSchema.Lookup(n.Field.Name)
			assert.True(t, known)
		default:
			t.Fatalf("unexpected node %T", p)
		}
	})
	assert.Equal(t, 9, nodes)
}

func TestCompile_Paging(t *testing.T) {
	c := newTestCompiler(t)

	tests := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{"", "", 1, 10},
		{"2", "2", 2, 2},
		{"0", "0", 1, 1},
		{"-3", "-1", 1, 1},
		{"abc", "xyz", 1, 10},
		{"5", "1000", 5, 100},
	}
	for _, tt := range tests {
		plan, err := c.Compile(map[string]string{"page": tt.page, "limit": tt.limit})
		require.NoError(t, err)
		assert.Equal(t, tt.wantPage, plan.Page, "page %q", tt.page)
		assert.Equal(t, tt.wantLimit, plan.Limit, "limit %q", tt.limit)
	}
}

func TestCompile_SelectAndSort(t *testing.T) {
	c := newTestCompiler(t)

	plan, err := c.Compile(map[string]string{
		"select": "title, status,title",
		"sort":   "status,-createdAt,status",
	})
	require.NoError(t, err)

	require.Len(t, plan.Select, 2)
	assert.Equal(t, "title", plan.Select[0].Name)
	assert.Equal(t, "status", plan.Select[1].Name)

	require.Len(t, plan.Sort, 2)
	assert.Equal(t, SortKey{Field: mustLookup(t, "status")}, plan.Sort[0])
	assert.Equal(t, SortKey{Field: mustLookup(t, "createdAt"), Desc: true}, plan.Sort[1])

	t.Run("blank directives fall back to defaults", func(t *testing.T) {
		plan, err := c.Compile(map[string]string{"select": " ", "sort": ""})
		require.NoError(t, err)
		assert.Empty(t, plan.Select)
		require.Len(t, plan.Sort, 1)
		assert.Equal(t, "createdAt", plan.Sort[0].Field.Name)
	})
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		total       int64
		next, prev  *PageRef
	}{
		{"single page", 1, 10, 3, nil, nil},
		{"first of many", 1, 2, 5, &PageRef{Page: 2, Limit: 2}, nil},
		{"middle", 2, 2, 5, &PageRef{Page: 3, Limit: 2}, &PageRef{Page: 1, Limit: 2}},
		{"exact last page", 2, 2, 4, nil, &PageRef{Page: 1, Limit: 2}},
		{"past the end", 4, 2, 5, nil, &PageRef{Page: 3, Limit: 2}},
		{"empty", 1, 10, 0, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &Plan{Page: tt.page, Limit: tt.limit}
			pg := plan.Paginate(tt.total)
			assert.Equal(t, tt.next, pg.Next)
			assert.Equal(t, tt.prev, pg.Prev)
		})
	}
}

func mustLookup(t *testing.T, name string) Field {
	t.Helper()
	f, ok := testSchema.Lookup(name)
	require.True(t, ok, name)
	return f
}
