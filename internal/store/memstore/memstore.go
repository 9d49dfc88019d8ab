// Package memstore is an in-memory store.Store used by tests and local runs
// without a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	issues map[uuid.UUID]*models.Issue
	now    func() time.Time
}

func New() *Store {
	return &Store{issues: make(map[uuid.UUID]*models.Issue), now: time.Now}
}

func (s *Store) Find(_ context.Context, plan *query.Plan) ([]models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.match(plan.Filter)
	if err != nil {
		return nil, err
	}
	sortIssues(matched, plan.Sort)

	skip := plan.Skip()
	if skip >= len(matched) {
		return []models.Issue{}, nil
	}
	end := skip + plan.Limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]models.Issue, 0, end-skip)
	for _, issue := range matched[skip:end] {
		out = append(out, clone(issue))
	}
	return out, nil
}

func (s *Store) Count(_ context.Context, filter query.Predicate) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched, err := s.match(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *Store) match(filter query.Predicate) ([]*models.Issue, error) {
	var out []*models.Issue
	for _, issue := range s.issues {
		ok, err := Matches(issue, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := clone(issue)
	return &c, nil
}

func (s *Store) Create(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	if _, dup := s.issues[issue.ID]; dup {
		return fmt.Errorf("issue %s already exists", issue.ID)
	}
	now := s.now()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now
	if issue.Status == "" {
		issue.Status = models.StatusReported
	}
	if issue.Severity == "" {
		issue.Severity = models.SeverityMedium
	}
	if issue.Images == nil {
		issue.Images = pq.StringArray{}
	}
	if issue.Upvoters == nil {
		issue.Upvoters = pq.StringArray{}
	}
	c := clone(issue)
	s.issues[issue.ID] = &c
	return nil
}

func (s *Store) Update(_ context.Context, id uuid.UUID, p store.Patch) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Title != nil {
		issue.Title = *p.Title
	}
	if p.Description != nil {
		issue.Description = *p.Description
	}
	if p.Category != nil {
		issue.Category = *p.Category
	}
	if p.Status != nil {
		issue.Status = *p.Status
	}
	if p.Severity != nil {
		issue.Severity = *p.Severity
	}
	if p.AssigneeID != nil {
		a := *p.AssigneeID
		issue.AssigneeID = &a
	}
	if p.Location != nil {
		issue.Location = cloneLocation(*p.Location)
	}
	issue.UpdatedAt = p.UpdatedAt
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = s.now()
	}
	c := clone(issue)
	return &c, nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.issues, id)
	return nil
}

func (s *Store) AppendImages(_ context.Context, id uuid.UUID, paths []string, max int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if len(issue.Images)+len(paths) > max {
		return nil, store.ErrImageLimit
	}
	issue.Images = append(issue.Images, paths...)
	issue.UpdatedAt = s.now()
	return append([]string(nil), issue.Images...), nil
}

func (s *Store) AddUpvoter(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return store.ErrNotFound
	}
	if !issue.HasUpvoter(userID) {
		issue.Upvoters = append(issue.Upvoters, userID.String())
	}
	return nil
}

func (s *Store) GroupCount(_ context.Context, field query.Field) ([]store.GroupCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int64{}
	for _, issue := range s.issues {
		v, ok := fieldValue(issue, field.Name)
		if !ok {
			return nil, fmt.Errorf("%w: cannot group by %q", query.ErrInvalidQuery, field.Name)
		}
		counts[fmt.Sprint(v)]++
	}
	out := make([]store.GroupCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, store.GroupCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func sortIssues(issues []*models.Issue, keys []query.SortKey) {
	sort.SliceStable(issues, func(i, j int) bool {
		for _, k := range keys {
			a, _ := fieldValue(issues[i], k.Field.Name)
			b, _ := fieldValue(issues[j], k.Field.Name)
			c, ok := compare(a, b)
			if !ok || c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return issues[i].ID.String() < issues[j].ID.String()
	})
}

func clone(i *models.Issue) models.Issue {
	c := *i
	c.Location = cloneLocation(i.Location)
	c.Images = append(pq.StringArray{}, i.Images...)
	c.Upvoters = append(pq.StringArray{}, i.Upvoters...)
	if i.AssigneeID != nil {
		a := *i.AssigneeID
		c.AssigneeID = &a
	}
	return c
}

func cloneLocation(l models.Location) models.Location {
	if l.Coordinates != nil {
		pt := *l.Coordinates
		pt.Coordinates = append(pq.Float64Array{}, l.Coordinates.Coordinates...)
		l.Coordinates = &pt
	}
	return l
}

// Matches evaluates a compiled filter against one issue.
func Matches(issue *models.Issue, p query.Predicate) (bool, error) {
	switch n := p.(type) {
	case nil:
		return true, nil
	case query.And:
		for _, t := range n.Terms {
			ok, err := Matches(issue, t)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case query.Comparison:
		v, ok := fieldValue(issue, n.Field.Name)
		if !ok {
			return false, fmt.Errorf("%w: field %q", query.ErrInvalidQuery, n.Field.Name)
		}
		c, ok := compare(v, n.Value)
		if !ok {
			return false, nil
		}
		switch n.Op {
		case query.OpEq:
			return c == 0, nil
		case query.OpGt:
			return c > 0, nil
		case query.OpGte:
			return c >= 0, nil
		case query.OpLt:
			return c < 0, nil
		case query.OpLte:
			return c <= 0, nil
		}
		return false, fmt.Errorf("%w: unsupported operator %q", query.ErrInvalidQuery, n.Op)
	case query.In:
		v, ok := fieldValue(issue, n.Field.Name)
		if !ok {
			return false, fmt.Errorf("%w: field %q", query.ErrInvalidQuery, n.Field.Name)
		}
		for _, want := range n.Values {
			if c, ok := compare(v, want); ok && c == 0 {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: unsupported predicate %T", query.ErrInvalidQuery, p)
}

func fieldValue(i *models.Issue, name string) (any, bool) {
	switch name {
	case "id":
		return i.ID, true
	case "title":
		return i.Title, true
	case "description":
		return i.Description, true
	case "category":
		return i.Category, true
	case "status":
		return i.Status, true
	case "severity":
		return i.Severity, true
	case "location.address":
		return i.Location.Address, true
	case "classification.predictedCategory":
		return i.Classification.PredictedCategory, true
	case "classification.confidenceScore":
		return i.Classification.ConfidenceScore, true
	case "classification.isFlagged":
		return i.Classification.IsFlagged, true
	case "owner":
		return i.OwnerID, true
	case "assignee":
		if i.AssigneeID == nil {
			return nil, true
		}
		return *i.AssigneeID, true
	case "createdAt":
		return i.CreatedAt, true
	case "updatedAt":
		return i.UpdatedAt, true
	}
	return nil, false
}

// compare orders two values of the same kind. ok is false when they are not
// comparable, e.g. a missing assignee.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case uuid.UUID:
		y, ok := b.(uuid.UUID)
		if !ok {
			return 0, false
		}
		return strings.Compare(x.String(), y.String()), true
	}
	return 0, false
}
