package mongostore

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// issueDocument is the BSON shape of an issue. Ids are stored as strings so
// the documents read the same from the mongo shell as from the API.
type issueDocument struct {
	ID             string                 `bson:"_id"`
	Title          string                 `bson:"title"`
	Description    string                 `bson:"description"`
	Category       string                 `bson:"category"`
	Location       locationDocument       `bson:"location"`
	Status         string                 `bson:"status"`
	Severity       string                 `bson:"severity"`
	Classification classificationDocument `bson:"classification"`
	Images         []string               `bson:"images"`
	Upvoters       []string               `bson:"upvoters"`
	Owner          string                 `bson:"owner"`
	Assignee       *string                `bson:"assignee,omitempty"`
	CreatedAt      time.Time              `bson:"createdAt"`
	UpdatedAt      time.Time              `bson:"updatedAt"`
}

type locationDocument struct {
	Address     string         `bson:"address"`
	Coordinates *pointDocument `bson:"coordinates,omitempty"`
}

type pointDocument struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type classificationDocument struct {
	PredictedCategory string  `bson:"predictedCategory"`
	ConfidenceScore   float64 `bson:"confidenceScore"`
	IsFlagged         bool    `bson:"isFlagged"`
	Origin            string  `bson:"origin,omitempty"`
}

func toDocument(i *models.Issue) issueDocument {
	doc := issueDocument{
		ID:          i.ID.String(),
		Title:       i.Title,
		Description: i.Description,
		Category:    i.Category,
		Location:    toLocationDocument(i.Location),
		Status:      i.Status,
		Severity:    i.Severity,
		Classification: classificationDocument{
			PredictedCategory: i.Classification.PredictedCategory,
			ConfidenceScore:   i.Classification.ConfidenceScore,
			IsFlagged:         i.Classification.IsFlagged,
			Origin:            i.Classification.Origin,
		},
		Images:    append([]string{}, i.Images...),
		Upvoters:  append([]string{}, i.Upvoters...),
		Owner:     i.OwnerID.String(),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
	if i.AssigneeID != nil {
		a := i.AssigneeID.String()
		doc.Assignee = &a
	}
	return doc
}

func toLocationDocument(l models.Location) locationDocument {
	doc := locationDocument{Address: l.Address}
	if l.Coordinates != nil {
		doc.Coordinates = &pointDocument{
			Type:        l.Coordinates.Type,
			Coordinates: append([]float64{}, l.Coordinates.Coordinates...),
		}
	}
	return doc
}

// toModel converts a possibly projected document. Ids that fail to parse are
// left as uuid.Nil.
func (d issueDocument) toModel() models.Issue {
	issue := models.Issue{
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Location:    models.Location{Address: d.Location.Address},
		Status:      d.Status,
		Severity:    d.Severity,
		Classification: models.Classification{
			PredictedCategory: d.Classification.PredictedCategory,
			ConfidenceScore:   d.Classification.ConfidenceScore,
			IsFlagged:         d.Classification.IsFlagged,
			Origin:            d.Classification.Origin,
		},
		Images:    append(pq.StringArray{}, d.Images...),
		Upvoters:  append(pq.StringArray{}, d.Upvoters...),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	issue.ID, _ = uuid.Parse(d.ID)
	issue.OwnerID, _ = uuid.Parse(d.Owner)
	if d.Assignee != nil {
		if a, err := uuid.Parse(*d.Assignee); err == nil {
			issue.AssigneeID = &a
		}
	}
	if pt := d.Location.Coordinates; pt != nil {
		issue.Location.Coordinates = &models.GeoPoint{Type: pt.Type, Coordinates: pq.Float64Array(pt.Coordinates)}
	}
	return issue
}
