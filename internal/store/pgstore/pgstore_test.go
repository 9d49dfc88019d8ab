package pgstore

import (
	"context"
	"testing"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunStore builds SQL without a server.
func dryRunStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=civictrack dbname=civictrack sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return New(db)
}

func compile(t *testing.T, params map[string]string) *query.Plan {
	t.Helper()
	c, err := query.NewCompiler(store.IssueSchema, query.DefaultOptions())
	require.NoError(t, err)
	plan, err := c.Compile(params)
	require.NoError(t, err)
	return plan
}

func TestFindQuery(t *testing.T) {
	s := dryRunStore(t)

	t.Run("filters sort and paging", func(t *testing.T) {
		plan := compile(t, map[string]string{
			"status":         "resolved",
			"createdAt[gte]": "2024-01-01",
			"page":           "2",
			"limit":          "2",
		})
		tx, err := s.findQuery(context.Background(), plan)
		require.NoError(t, err)

		stmt := tx.Find(&[]models.Issue{}).Statement
		sql := stmt.SQL.String()
		assert.Contains(t, sql, `FROM "issues"`)
		assert.Contains(t, sql, `"created_at" >= $1`)
		assert.Contains(t, sql, `"status" = $2`)
		assert.Contains(t, sql, `ORDER BY "created_at" DESC`)
		assert.Contains(t, sql, "LIMIT")
		assert.Contains(t, sql, "OFFSET")
		require.GreaterOrEqual(t, len(stmt.Vars), 2)
		assert.Equal(t, "resolved", stmt.Vars[1])
	})

	t.Run("in list and projection", func(t *testing.T) {
		plan := compile(t, map[string]string{
			"category[in]": "sanitation,environment",
			"select":       "title,classification",
		})
		tx, err := s.findQuery(context.Background(), plan)
		require.NoError(t, err)

		sql := tx.Find(&[]models.Issue{}).Statement.SQL.String()
		assert.Contains(t, sql, `"category" IN ($1,$2)`)
		assert.Contains(t, sql, `"owner_id"`)
		assert.Contains(t, sql, `"classification_is_flagged"`)
		assert.NotContains(t, sql, `"description"`)
	})

	t.Run("hostile values stay bound", func(t *testing.T) {
		plan := compile(t, map[string]string{"title": `x'; DROP TABLE issues; --`})
		tx, err := s.findQuery(context.Background(), plan)
		require.NoError(t, err)

		stmt := tx.Find(&[]models.Issue{}).Statement
		assert.NotContains(t, stmt.SQL.String(), "DROP TABLE")
		assert.Contains(t, stmt.Vars, `x'; DROP TABLE issues; --`)
	})
}

func TestExpression(t *testing.T) {
	t.Run("empty filter", func(t *testing.T) {
		e, err := Expression(query.And{})
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("unknown operator", func(t *testing.T) {
		_, err := Expression(query.Comparison{Field: store.MustField("title"), Op: query.Op("regex"), Value: "x"})
		assert.ErrorIs(t, err, query.ErrInvalidQuery)
	})
}

func TestPatchColumns(t *testing.T) {
	status := models.StatusResolved
	cols := patchColumns(store.Patch{
		Status:   &status,
		Location: &models.Location{Address: "1 Main St"},
	})

	assert.Equal(t, models.StatusResolved, cols["status"])
	assert.Equal(t, "1 Main St", cols["location_address"])
	assert.Contains(t, cols, "location_point_type")
	assert.Contains(t, cols, "updated_at")
	assert.NotContains(t, cols, "title")
}
