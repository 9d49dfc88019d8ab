package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/classifier"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/dto"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Classifier enriches issue text. Implementations must not fail.
type Classifier interface {
	Classify(ctx context.Context, text string) classifier.Result
}

// OwnerDirectory resolves user ids to display information.
type OwnerDirectory interface {
	Owners(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]dto.OwnerView, error)
}

type IssueService struct {
	store      store.Store
	compiler   *query.Compiler
	classifier Classifier
	owners     OwnerDirectory
	validate   *validator.Validate
}

func NewIssueService(st store.Store, compiler *query.Compiler, cls Classifier, owners OwnerDirectory) *IssueService {
	return &IssueService{
		store:      st,
		compiler:   compiler,
		classifier: cls,
		owners:     owners,
		validate:   newValidator(),
	}
}

// List compiles params into a plan and returns one page of issues with
// owners resolved. Errors from the compiler wrap query.ErrInvalidQuery.
func (s *IssueService) List(ctx context.Context, params map[string]string) (*dto.IssuePage, error) {
	plan, err := s.compiler.Compile(params)
	if err != nil {
		return nil, err
	}

	total, err := s.store.Count(ctx, plan.Filter)
	if err != nil {
		return nil, err
	}
	issues, err := s.store.Find(ctx, plan)
	if err != nil {
		return nil, err
	}

	views, err := s.views(ctx, issues)
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].Project(plan.Select)
	}

	return &dto.IssuePage{
		Items:      views,
		Count:      len(views),
		Total:      total,
		Pagination: plan.Paginate(total),
	}, nil
}

func (s *IssueService) Get(ctx context.Context, id uuid.UUID) (*dto.IssueView, error) {
	issue, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	views, err := s.views(ctx, []models.Issue{*issue})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *IssueService) views(ctx context.Context, issues []models.Issue) ([]dto.IssueView, error) {
	views := make([]dto.IssueView, len(issues))
	if len(issues) == 0 {
		return views, nil
	}

	var owners map[uuid.UUID]dto.OwnerView
	if s.owners != nil {
		seen := make(map[uuid.UUID]bool, len(issues))
		ids := make([]uuid.UUID, 0, len(issues))
		for _, is := range issues {
			if !seen[is.OwnerID] {
				seen[is.OwnerID] = true
				ids = append(ids, is.OwnerID)
			}
		}
		var err error
		owners, err = s.owners.Owners(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve owners: %w", err)
		}
	}

	for i, is := range issues {
		owner, ok := owners[is.OwnerID]
		if !ok {
			owner = dto.OwnerView{ID: is.OwnerID}
		}
		views[i] = dto.IssueView{Issue: is, Owner: owner}
	}
	return views, nil
}

// Create classifies the report and persists it with actor as owner. The
// classification is final before anything is written.
func (s *IssueService) Create(ctx context.Context, actor Actor, req *dto.CreateIssueRequest) (*models.Issue, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Location.Address = strings.TrimSpace(req.Location.Address)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if err := checkPoint(req.Location.Coordinates); err != nil {
		return nil, err
	}
	if actor.ID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	res := s.classifier.Classify(ctx, req.Title+". "+req.Description)

	category := req.Category
	if res.Category != "" {
		category = res.Category
	}
	severity := req.Severity
	if res.Severity != "" {
		severity = res.Severity
	}
	if severity == "" {
		severity = models.SeverityMedium
	}
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrValidation)
	}

	issue := &models.Issue{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		Location:    req.Location.ToModel(),
		Status:      models.StatusReported,
		Severity:    severity,
		Images:      append([]string{}, req.Images...),
		Upvoters:    []string{},
		OwnerID:     actor.ID,
		CreatedAt:   time.Now().UTC(),
	}
	issue.Classification = models.Classification{
		PredictedCategory: res.Category,
		Origin:            string(res.Origin),
	}
	issue.Classification.SetConfidence(res.Confidence)

	if err := s.store.Create(ctx, issue); err != nil {
		return nil, err
	}
	issuesCreatedTotal.WithLabelValues(issue.Category, issue.Classification.Origin).Inc()
	if issue.Classification.IsFlagged {
		issuesFlaggedTotal.Inc()
	}

	slog.Info("issue created",
		"issue_id", issue.ID.String(),
		"user_id", actor.ID.String(),
		"category", issue.Category,
		"severity", issue.Severity,
		"classification_origin", issue.Classification.Origin,
		"flagged", issue.Classification.IsFlagged,
	)
	return issue, nil
}

// Update applies a validated patch. Classification is never recomputed.
func (s *IssueService) Update(ctx context.Context, id uuid.UUID, actor Actor, req *dto.UpdateIssueRequest) (_ *models.Issue, err error) {
	defer func() { recordMutation(string(ActionUpdate), err) }()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if !CanMutate(actor, current, ActionUpdate) {
		return nil, ErrUnauthorized
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	patch := store.Patch{
		Title:       trimmed(req.Title),
		Description: trimmed(req.Description),
		Category:    req.Category,
		Status:      req.Status,
		Severity:    req.Severity,
		AssigneeID:  req.Assignee,
		UpdatedAt:   time.Now().UTC(),
	}
	if req.Location != nil {
		if err := checkPoint(req.Location.Coordinates); err != nil {
			return nil, err
		}
		loc := req.Location.ToModel()
		patch.Location = &loc
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, storeError(err)
	}
	slog.Info("issue updated", "issue_id", id.String(), "user_id", actor.ID.String(), "action", string(ActionUpdate))
	return updated, nil
}

func (s *IssueService) Delete(ctx context.Context, id uuid.UUID, actor Actor) (err error) {
	defer func() { recordMutation(string(ActionDelete), err) }()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if !CanMutate(actor, current, ActionDelete) {
		return ErrUnauthorized
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return storeError(err)
	}
	slog.Info("issue deleted", "issue_id", id.String(), "user_id", actor.ID.String(), "action", string(ActionDelete))
	return nil
}

// AppendPhotos adds paths to the issue images. The append is all or nothing:
// if the result would exceed models.MaxImages nothing is stored.
func (s *IssueService) AppendPhotos(ctx context.Context, id uuid.UUID, actor Actor, paths []string) (_ []string, err error) {
	defer func() { recordMutation(string(ActionPhoto), err) }()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if !CanMutate(actor, current, ActionPhoto) {
		return nil, ErrUnauthorized
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: please upload a file", ErrValidation)
	}

	images, err := s.store.AppendImages(ctx, id, paths, models.MaxImages)
	if err != nil {
		return nil, storeError(err)
	}
	return images, nil
}

// Upvote adds actor to the upvoters set. Repeated upvotes are no-ops.
func (s *IssueService) Upvote(ctx context.Context, id uuid.UUID, actor Actor) (err error) {
	defer func() { recordMutation("upvote", err) }()

	if actor.ID == uuid.Nil {
		return ErrUnauthorized
	}
	return storeError(s.store.AddUpvoter(ctx, id, actor.ID))
}

// Metrics aggregates counts over all issues. The queries run concurrently
// and tolerate concurrent writes.
func (s *IssueService) Metrics(ctx context.Context) (*dto.Metrics, error) {
	status := store.MustField("status")
	var pendingStatuses []any
	for _, st := range models.Statuses {
		if st != models.StatusResolved {
			pendingStatuses = append(pendingStatuses, st)
		}
	}

	var m dto.Metrics
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		m.Summary.Total, err = s.store.Count(ctx, query.And{})
		return err
	})
	g.Go(func() (err error) {
		m.Summary.Resolved, err = s.store.Count(ctx, query.Comparison{Field: status, Op: query.OpEq, Value: models.StatusResolved})
		return err
	})
	g.Go(func() (err error) {
		m.Summary.Pending, err = s.store.Count(ctx, query.In{Field: status, Values: pendingStatuses})
		return err
	})
	g.Go(func() (err error) {
		m.ByCategory, err = s.store.GroupCount(ctx, store.MustField("category"))
		return err
	})
	g.Go(func() (err error) {
		m.ByStatus, err = s.store.GroupCount(ctx, status)
		return err
	})
	g.Go(func() (err error) {
		m.BySeverity, err = s.store.GroupCount(ctx, store.MustField("severity"))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute metrics: %w", err)
	}

	m.Summary.ResolutionRate = ResolutionRate(m.Summary.Resolved, m.Summary.Total)
	return &m, nil
}

// ResolutionRate formats resolved/total as a percentage with two decimals,
// or "0%" when there are no issues.
func ResolutionRate(resolved, total int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(resolved)/float64(total)*100)
}

func checkPoint(p *dto.PointInput) error {
	if p == nil {
		return nil
	}
	if len(p.Coordinates) != 2 {
		return fmt.Errorf("%w: coordinates must be [longitude, latitude]", ErrValidation)
	}
	lng, lat := p.Coordinates[0], p.Coordinates[1]
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
