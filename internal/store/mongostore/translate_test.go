package mongostore

import (
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func compile(t *testing.T, params map[string]string) *query.Plan {
	t.Helper()
	c, err := query.NewCompiler(store.IssueSchema, query.DefaultOptions())
	require.NoError(t, err)
	plan, err := c.Compile(params)
	require.NoError(t, err)
	return plan
}

func TestFilter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		f, err := Filter(compile(t, nil).Filter)
		require.NoError(t, err)
		assert.Equal(t, bson.D{}, f)
	})

	t.Run("single term is not wrapped", func(t *testing.T) {
		f, err := Filter(compile(t, map[string]string{"status": "resolved"}).Filter)
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "status", Value: bson.D{{Key: "$eq", Value: "resolved"}}}}, f)
	})

	t.Run("conjunction with range and in", func(t *testing.T) {
		owner := uuid.New()
		f, err := Filter(compile(t, map[string]string{
			"createdAt[gte]":                     "2024-01-01",
			"classification.confidenceScore[lt]": "0.5",
			"category[in]":                       "sanitation,environment",
			"owner":                              owner.String(),
		}).Filter)
		require.NoError(t, err)

		want := bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "category", Value: bson.D{{Key: "$in", Value: bson.A{"sanitation", "environment"}}}}},
			bson.D{{Key: "classification.confidenceScore", Value: bson.D{{Key: "$lt", Value: 0.5}}}},
			bson.D{{Key: "createdAt", Value: bson.D{{Key: "$gte", Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}}},
			bson.D{{Key: "owner", Value: bson.D{{Key: "$eq", Value: owner.String()}}}},
		}}}
		assert.Equal(t, want, f)
	})

	t.Run("id maps to _id", func(t *testing.T) {
		id := uuid.New()
		f, err := Filter(compile(t, map[string]string{"id": id.String()}).Filter)
		require.NoError(t, err)
		assert.Equal(t, "_id", f[0].Key)
	})

	t.Run("hostile value is data", func(t *testing.T) {
		f, err := Filter(compile(t, map[string]string{"title": `{"$ne": null}`}).Filter)
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "title", Value: bson.D{{Key: "$eq", Value: `{"$ne": null}`}}}}, f)
	})

	t.Run("rejects in as comparison", func(t *testing.T) {
		_, err := Filter(query.Comparison{Field: store.MustField("status"), Op: query.OpIn, Value: "x"})
		assert.ErrorIs(t, err, query.ErrInvalidQuery)
	})
}

func TestSortAndProjection(t *testing.T) {
	plan := compile(t, map[string]string{"sort": "status,-createdAt", "select": "title,location"})

	assert.Equal(t, bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}, Sort(plan.Sort))
	assert.Equal(t, bson.D{
		{Key: "owner", Value: 1},
		{Key: "title", Value: 1},
		{Key: "location", Value: 1},
	}, Projection(plan.Select))
	assert.Nil(t, Projection(nil))
}

func TestAppendImagesUpdate(t *testing.T) {
	id := uuid.New()
	filter, update := appendImagesUpdate(id, []string{"a", "b"}, models.MaxImages-2)

	assert.Equal(t, bson.E{Key: "_id", Value: id.String()}, filter[0])
	assert.Equal(t, bson.E{Key: "images.3", Value: bson.D{{Key: "$exists", Value: false}}}, filter[1])
	assert.Equal(t, "$push", update[0].Key)
}

func TestDocumentRoundTrip(t *testing.T) {
	assignee := uuid.New()
	issue := models.Issue{
		ID:          uuid.New(),
		Title:       "Broken light",
		Description: "Street light out",
		Category:    models.CategoryPublicSafety,
		Location: models.Location{
			Address:     "5 Elm St",
			Coordinates: &models.GeoPoint{Type: "Point", Coordinates: []float64{29.0, 41.0}},
		},
		Status:     models.StatusVerified,
		Severity:   models.SeverityHigh,
		Images:     []string{"/uploads/a.jpg"},
		OwnerID:    uuid.New(),
		AssigneeID: &assignee,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	issue.Classification.SetConfidence(0.42)

	got := toDocument(&issue).toModel()
	assert.Equal(t, issue.ID, got.ID)
	assert.Equal(t, issue.OwnerID, got.OwnerID)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, assignee, *got.AssigneeID)
	assert.Equal(t, issue.Location.Coordinates.Coordinates, got.Location.Coordinates.Coordinates)
	assert.True(t, got.Classification.IsFlagged)
	assert.Equal(t, []string{"/uploads/a.jpg"}, []string(got.Images))
	assert.Empty(t, got.Upvoters)
}
