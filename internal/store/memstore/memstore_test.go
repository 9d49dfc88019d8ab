package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, params map[string]string) *query.Plan {
	t.Helper()
	c, err := query.NewCompiler(store.IssueSchema, query.DefaultOptions())
	require.NoError(t, err)
	plan, err := c.Compile(params)
	require.NoError(t, err)
	return plan
}

func seed(t *testing.T, s *Store, status string, createdAt time.Time) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		Title:       "Issue " + status,
		Description: "seeded",
		Category:    models.CategoryInfrastructure,
		Status:      status,
		OwnerID:     uuid.New(),
		CreatedAt:   createdAt,
	}
	require.NoError(t, s.Create(context.Background(), issue))
	return issue
}

func TestFindFilterSortPage(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seed(t, s, models.StatusResolved, base.Add(time.Duration(i)*time.Hour))
	}
	seed(t, s, models.StatusReported, base.Add(10*time.Hour))

	plan := compile(t, map[string]string{"status": "resolved", "limit": "2", "page": "2"})
	issues, err := s.Find(ctx, plan)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	// Newest first: hours 4,3 on page one, 2,1 on page two.
	assert.Equal(t, base.Add(2*time.Hour), issues[0].CreatedAt)
	assert.Equal(t, base.Add(1*time.Hour), issues[1].CreatedAt)

	total, err := s.Count(ctx, plan.Filter)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)

	t.Run("page past the end is empty", func(t *testing.T) {
		issues, err := s.Find(ctx, compile(t, map[string]string{"page": "9"}))
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("range and in", func(t *testing.T) {
		plan := compile(t, map[string]string{
			"createdAt[gte]": base.Add(3 * time.Hour).Format(time.RFC3339),
			"status[in]":     "resolved,dismissed",
		})
		n, err := s.Count(ctx, plan.Filter)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})

	t.Run("unset assignee never matches", func(t *testing.T) {
		plan := compile(t, map[string]string{"assignee": uuid.NewString()})
		n, err := s.Count(ctx, plan.Filter)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestCreateDefaults(t *testing.T) {
	s := New()
	issue := &models.Issue{Title: "t", OwnerID: uuid.New()}
	require.NoError(t, s.Create(context.Background(), issue))

	assert.NotEqual(t, uuid.Nil, issue.ID)
	assert.Equal(t, models.StatusReported, issue.Status)
	assert.Equal(t, models.SeverityMedium, issue.Severity)
	assert.NotNil(t, issue.Images)
	assert.False(t, issue.CreatedAt.IsZero())
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	issue := seed(t, s, models.StatusReported, time.Now())

	status := models.StatusInProgress
	updated, err := s.Update(ctx, issue.ID, store.Patch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, issue.Title, updated.Title)

	_, err = s.Update(ctx, uuid.New(), store.Patch{Status: &status})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Delete(ctx, issue.ID))
	assert.ErrorIs(t, s.Delete(ctx, issue.ID), store.ErrNotFound)
	_, err = s.Get(ctx, issue.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendImages(t *testing.T) {
	ctx := context.Background()
	s := New()
	issue := seed(t, s, models.StatusReported, time.Now())

	images, err := s.AppendImages(ctx, issue.ID, []string{"a", "b", "c"}, models.MaxImages)
	require.NoError(t, err)
	assert.Len(t, images, 3)

	_, err = s.AppendImages(ctx, issue.ID, []string{"d", "e", "f"}, models.MaxImages)
	assert.ErrorIs(t, err, store.ErrImageLimit)

	got, err := s.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, []string(got.Images))

	_, err = s.AppendImages(ctx, uuid.New(), []string{"x"}, models.MaxImages)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendImagesConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	issue := seed(t, s, models.StatusReported, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AppendImages(ctx, issue.ID, []string{"p1", "p2"}, models.MaxImages)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, got.Images, 4)
}

func TestAddUpvoterIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	issue := seed(t, s, models.StatusReported, time.Now())
	user := uuid.New()

	require.NoError(t, s.AddUpvoter(ctx, issue.ID, user))
	require.NoError(t, s.AddUpvoter(ctx, issue.ID, user))

	got, err := s.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, got.Upvoters, 1)
	assert.True(t, got.HasUpvoter(user))

	assert.ErrorIs(t, s.AddUpvoter(ctx, uuid.New(), user), store.ErrNotFound)
}

func TestGroupCount(t *testing.T) {
	s := New()
	seed(t, s, models.StatusResolved, time.Now())
	seed(t, s, models.StatusResolved, time.Now())
	seed(t, s, models.StatusReported, time.Now())

	groups, err := s.GroupCount(context.Background(), store.MustField("status"))
	require.NoError(t, err)
	assert.Equal(t, []store.GroupCount{
		{Key: models.StatusResolved, Count: 2},
		{Key: models.StatusReported, Count: 1},
	}, groups)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	issue := seed(t, s, models.StatusReported, time.Now())

	got, err := s.Get(ctx, issue.ID)
	require.NoError(t, err)
	got.Images = append(got.Images, "mutated")

	again, err := s.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Images)
}
