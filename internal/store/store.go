// Package store defines the record store contract for issues and the field
// schema list requests are compiled against. Backends live in subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("issue not found")
	ErrImageLimit = errors.New("image limit exceeded")
)

// Patch lists the mutable fields of an issue. Nil pointers are left alone.
type Patch struct {
	Title       *string
	Description *string
	Category    *string
	Location    *models.Location
	Status      *string
	Severity    *string
	AssigneeID  *uuid.UUID
	UpdatedAt   time.Time
}

// GroupCount is the number of issues sharing one value of a field.
type GroupCount struct {
	Key   string `json:"_id"`
	Count int64  `json:"count"`
}

// Store persists issues. Implementations must make AppendImages and
// AddUpvoter atomic per document.
type Store interface {
	Find(ctx context.Context, plan *query.Plan) ([]models.Issue, error)
	Count(ctx context.Context, filter query.Predicate) (int64, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	Create(ctx context.Context, issue *models.Issue) error
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*models.Issue, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// AppendImages appends paths only if the result holds at most max
	// images; otherwise nothing is written and ErrImageLimit is returned.
	AppendImages(ctx context.Context, id uuid.UUID, paths []string, max int) ([]string, error)

	// AddUpvoter adds userID to the upvoter set; existing members are a no-op.
	AddUpvoter(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	// GroupCount counts issues per distinct value of field.
	GroupCount(ctx context.Context, field query.Field) ([]GroupCount, error)

	Ping(ctx context.Context) error
}
