// Package pgstore is the GORM/PostgreSQL implementation of store.Store.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the issues table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&models.Issue{})
}

func (s *Store) Find(ctx context.Context, plan *query.Plan) ([]models.Issue, error) {
	tx, err := s.findQuery(ctx, plan)
	if err != nil {
		return nil, err
	}
	var issues []models.Issue
	if err := tx.Find(&issues).Error; err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

func (s *Store) findQuery(ctx context.Context, plan *query.Plan) (*gorm.DB, error) {
	tx, err := s.filtered(ctx, plan.Filter)
	if err != nil {
		return nil, err
	}
	if len(plan.Select) > 0 {
		tx = tx.Select(store.SelectColumns(plan.Select))
	}
	for _, k := range plan.Sort {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: k.Field.Column}, Desc: k.Desc})
	}
	return tx.Offset(plan.Skip()).Limit(plan.Limit), nil
}

func (s *Store) Count(ctx context.Context, filter query.Predicate) (int64, error) {
	tx, err := s.filtered(ctx, filter)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return total, nil
}

func (s *Store) filtered(ctx context.Context, filter query.Predicate) (*gorm.DB, error) {
	tx := s.db.WithContext(ctx).Model(&models.Issue{})
	expr, err := Expression(filter)
	if err != nil {
		return nil, err
	}
	if expr != nil {
		tx = tx.Clauses(clause.Where{Exprs: []clause.Expression{expr}})
	}
	return tx, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	var issue models.Issue
	if err := s.db.WithContext(ctx).First(&issue, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &issue, nil
}

func (s *Store) Create(ctx context.Context, issue *models.Issue) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	if issue.Images == nil {
		issue.Images = pq.StringArray{}
	}
	if issue.Upvoters == nil {
		issue.Upvoters = pq.StringArray{}
	}
	if err := s.db.WithContext(ctx).Create(issue).Error; err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id uuid.UUID, patch store.Patch) (*models.Issue, error) {
	updates := patchColumns(patch)
	result := s.db.WithContext(ctx).Model(&models.Issue{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update issue: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.Get(ctx, id)
}

func patchColumns(p store.Patch) map[string]interface{} {
	updates := map[string]interface{}{}
	if p.Title != nil {
		updates["title"] = *p.Title
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Category != nil {
		updates["category"] = *p.Category
	}
	if p.Status != nil {
		updates["status"] = *p.Status
	}
	if p.Severity != nil {
		updates["severity"] = *p.Severity
	}
	if p.AssigneeID != nil {
		updates["assignee_id"] = *p.AssigneeID
	}
	if p.Location != nil {
		updates["location_address"] = p.Location.Address
		if pt := p.Location.Coordinates; pt != nil {
			updates["location_point_type"] = pt.Type
			updates["location_point_coordinates"] = pt.Coordinates
		} else {
			updates["location_point_type"] = nil
			updates["location_point_coordinates"] = nil
		}
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	updates["updated_at"] = p.UpdatedAt
	return updates
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Issue{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete issue: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendImages runs a single conditional UPDATE so two concurrent uploads
// cannot push the array past max.
func (s *Store) AppendImages(ctx context.Context, id uuid.UUID, paths []string, max int) ([]string, error) {
	var updated models.Issue
	result := s.db.WithContext(ctx).Model(&updated).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "images"}}}).
		Where("id = ? AND coalesce(cardinality(images), 0) + ? <= ?", id, len(paths), max).
		Updates(map[string]interface{}{
			"images":     gorm.Expr("images || ?::text[]", pq.StringArray(paths)),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to append images: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrImageLimit
	}
	return updated.Images, nil
}

func (s *Store) AddUpvoter(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	uid := userID.String()
	result := s.db.WithContext(ctx).Model(&models.Issue{}).
		Where("id = ? AND NOT (? = ANY(upvoters))", id, uid).
		Update("upvoters", gorm.Expr("array_append(upvoters, ?)", uid))
	if result.Error != nil {
		return fmt.Errorf("failed to upvote issue: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either missing or already upvoted.
		_, err := s.Get(ctx, id)
		return err
	}
	return nil
}

func (s *Store) GroupCount(ctx context.Context, field query.Field) ([]store.GroupCount, error) {
	var rows []store.GroupCount
	col := clause.Column{Name: field.Column}
	err := s.db.WithContext(ctx).Model(&models.Issue{}).
		Select("? AS key, count(*) AS count", col).
		Group(field.Column).
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group issues by %s: %w", field.Name, err)
	}
	return rows, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
