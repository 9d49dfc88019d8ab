package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Issue categories.
const (
	CategoryInfrastructure = "infrastructure"
	CategorySanitation     = "sanitation"
	CategoryEnvironment    = "environment"
	CategoryPublicSafety   = "public_safety"
	CategoryOther          = "other"
)

// Issue lifecycle statuses.
const (
	StatusReported   = "reported"
	StatusVerified   = "verified"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusDismissed  = "dismissed"
)

// Severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	// MaxImages caps Issue.Images on create and on every append.
	MaxImages = 5

	// FlagThreshold is the confidence below which a classification needs human review.
	FlagThreshold = 0.50
)

var (
	Categories = []string{CategoryInfrastructure, CategorySanitation, CategoryEnvironment, CategoryPublicSafety, CategoryOther}
	Statuses   = []string{StatusReported, StatusVerified, StatusInProgress, StatusResolved, StatusDismissed}
	Severities = []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
)

// Issue is a citizen report.
type Issue struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title          string         `gorm:"size:100;not null" json:"title"`
	Description    string         `gorm:"size:1000;not null" json:"description"`
	Category       string         `gorm:"size:32;not null;index" json:"category"`
	Location       Location       `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Status         string         `gorm:"size:20;not null;default:'reported';index" json:"status"`
	Severity       string         `gorm:"size:20;not null;default:'medium';index" json:"severity"`
	Classification Classification `gorm:"embedded;embeddedPrefix:classification_" json:"classification"`
	Images         pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"images"`
	Upvoters       pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"upvoters"`
	OwnerID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner"`
	AssigneeID     *uuid.UUID     `gorm:"type:uuid;index" json:"assignee,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (Issue) TableName() string {
	return "issues"
}

// Location is a street address plus an optional GeoJSON point.
type Location struct {
	Address     string    `gorm:"size:255;not null" json:"address"`
	Coordinates *GeoPoint `gorm:"embedded;embeddedPrefix:point_" json:"coordinates,omitempty"`
}

// GeoPoint is a GeoJSON Point: Coordinates holds [longitude, latitude].
type GeoPoint struct {
	Type        string          `gorm:"size:10" json:"type"`
	Coordinates pq.Float64Array `gorm:"type:double precision[]" json:"coordinates"`
}

// Classification is the predicted category/confidence attached at creation.
type Classification struct {
	PredictedCategory string  `gorm:"size:32" json:"predictedCategory"`
	ConfidenceScore   float64 `json:"confidenceScore"`
	IsFlagged         bool    `gorm:"index" json:"isFlagged"`
	Origin            string  `gorm:"size:10" json:"origin,omitempty"`
}

// SetConfidence stores the score and recomputes IsFlagged from it.
func (c *Classification) SetConfidence(score float64) {
	c.ConfidenceScore = score
	c.IsFlagged = score < FlagThreshold
}

// HasUpvoter reports whether userID already upvoted the issue.
func (i *Issue) HasUpvoter(userID uuid.UUID) bool {
	id := userID.String()
	for _, u := range i.Upvoters {
		if u == id {
			return true
		}
	}
	return false
}

// IsMember reports whether v is one of values.
func IsMember(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
