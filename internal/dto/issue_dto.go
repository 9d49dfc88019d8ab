package dto

import (
	"encoding/json"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/google/uuid"
)

type PointInput struct {
	Type        string    `json:"type" validate:"omitempty,eq=Point"`
	Coordinates []float64 `json:"coordinates" validate:"len=2"`
}

type LocationInput struct {
	Address     string      `json:"address" validate:"required,max=255"`
	Coordinates *PointInput `json:"coordinates,omitempty"`
}

// ToModel converts the input, defaulting the point type to GeoJSON "Point".
func (l LocationInput) ToModel() models.Location {
	loc := models.Location{Address: l.Address}
	if l.Coordinates != nil {
		loc.Coordinates = &models.GeoPoint{
			Type:        "Point",
			Coordinates: append([]float64{}, l.Coordinates.Coordinates...),
		}
	}
	return loc
}

type CreateIssueRequest struct {
	Title       string        `json:"title" validate:"required,max=100"`
	Description string        `json:"description" validate:"required,max=1000"`
	Category    string        `json:"category" validate:"omitempty,oneof=infrastructure sanitation environment public_safety other"`
	Severity    string        `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Location    LocationInput `json:"location"`
	Images      []string      `json:"images" validate:"max=5,dive,required"`
}

// UpdateIssueRequest lists the fields a PUT may change. Owner, creation time,
// images and classification are not updatable here.
type UpdateIssueRequest struct {
	Title       *string        `json:"title" validate:"omitempty,min=1,max=100"`
	Description *string        `json:"description" validate:"omitempty,min=1,max=1000"`
	Category    *string        `json:"category" validate:"omitempty,oneof=infrastructure sanitation environment public_safety other"`
	Location    *LocationInput `json:"location"`
	Status      *string        `json:"status" validate:"omitempty,oneof=reported verified in_progress resolved dismissed"`
	Severity    *string        `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Assignee    *uuid.UUID     `json:"assignee"`
}

type OwnerView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name,omitempty"`
	Role string    `json:"role,omitempty"`
}

// IssueView is an issue with its owner resolved. The Owner field shadows the
// bare owner id of the embedded issue in JSON.
type IssueView struct {
	models.Issue
	Owner OwnerView `json:"owner"`

	fields []string
}

// Project limits the JSON output to the named top-level keys plus id and
// owner. An empty list keeps everything.
func (v *IssueView) Project(fields []query.Field) {
	v.fields = v.fields[:0]
	for _, f := range fields {
		v.fields = append(v.fields, f.Name)
	}
}

func (v IssueView) MarshalJSON() ([]byte, error) {
	type plain IssueView
	b, err := json.Marshal(plain(v))
	if err != nil || len(v.fields) == 0 {
		return b, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{"id": all["id"], "owner": all["owner"]}
	for _, name := range v.fields {
		if raw, ok := all[name]; ok {
			out[name] = raw
		}
	}
	return json.Marshal(out)
}

type IssuePage struct {
	Items      []IssueView      `json:"data"`
	Count      int              `json:"count"`
	Total      int64            `json:"total"`
	Pagination query.Pagination `json:"pagination"`
}

type MetricsSummary struct {
	Total          int64  `json:"total"`
	Resolved       int64  `json:"resolved"`
	Pending        int64  `json:"pending"`
	ResolutionRate string `json:"resolutionRate"`
}

type Metrics struct {
	Summary    MetricsSummary     `json:"summary"`
	ByCategory []store.GroupCount `json:"byCategory"`
	ByStatus   []store.GroupCount `json:"byStatus"`
	BySeverity []store.GroupCount `json:"bySeverity"`
}
