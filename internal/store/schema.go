package store

import (
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
)

// IssueSchema is every issue field a list request may name, with its SQL
// column and document path.
var IssueSchema = query.NewSchema(
	query.Field{Name: "id", Column: "id", Path: "_id", Kind: query.KindID, Filterable: true, Sortable: true, Selectable: true},
	query.Field{Name: "title", Column: "title", Path: "title", Kind: query.KindString, Filterable: true, Sortable: true, Selectable: true},
	query.Field{Name: "description", Column: "description", Path: "description", Kind: query.KindString, Filterable: true, Selectable: true},
	query.Field{Name: "category", Column: "category", Path: "category", Kind: query.KindEnum, Enum: models.Categories, Filterable: true, Sortable: true, Selectable: true},
	query.Field{Name: "status", Column: "status", Path: "status", Kind: query.KindEnum, Enum: models.Statuses, Filterable: true, Sortable: true, Selectable: true},
	query.Field{Name: "severity", Column: "severity", Path: "severity", Kind: query.KindEnum, Enum: models.Severities, Filterable: true, Sortable: true, Selectable: true},
	query.Field{Name: "location", Column: "location_address", Path: "location", Kind: query.KindString, Selectable: true},
	query.Field{Name: "location.address", Column: "location_address", Path: "location.address", Kind: query.KindString, Filterable: true, Sortable: true},
	query.Field{Name: "classification", Column: "classification_confidence_score", Path: "classification", Kind: query.KindNumber, Selectable: true},
	query.Field{Name: "classification.predictedCategory", Column: "classification_predicted_category", Path: "classification.predictedCategory", Kind: query.KindEnum, Enum: models.Categories, Filterable: true, Sortable: true},
	query.Field{Name: "classification.confidenceScore", Column: "classification_confidence_score", Path: "classification.confidenceScore", Kind: query.KindNumber, Filterable: true, Sortable: true},
	query.Field{Name: "classification.isFlagged", Column: "classification_is_flagged", Path: "classification.isFlagged", Kind: query.KindBool, Filterable: true, Sortable: true},
	query.Field{Name: "images", Column: "images", Path: "images", Kind: query.KindString, Selectable: true},
	query.Field{Name: "upvoters", Column: "upvoters", Path: "upvoters", Kind: query.KindString, Selectable: true},
	query.Field{Name: "owner", Column: "owner_id", Path: "owner", Kind: query.KindID, Filterable: true, Sortable: true, Selectable: true},
	query.Field{Name: "assignee", Column: "assignee_id", Path: "assignee", Kind: query.KindID, Filterable: true, Sortable: true, Selectable: true},
	query.Field{Name: "createdAt", Column: "created_at", Path: "createdAt", Kind: query.KindTime, Filterable: true, Sortable: true, Selectable: true},
	query.Field{Name: "updatedAt", Column: "updated_at", Path: "updatedAt", Kind: query.KindTime, Filterable: true, Sortable: true, Selectable: true},
)

// SelectColumns maps a projection to SQL columns. Composite fields expand to
// all of their columns; id and owner_id are always included so the owner can
// be resolved.
func SelectColumns(fields []query.Field) []string {
	cols := []string{"id", "owner_id"}
	seen := map[string]bool{"id": true, "owner_id": true}
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, f := range fields {
		switch f.Name {
		case "location":
			add("location_address")
			add("location_point_type")
			add("location_point_coordinates")
		case "classification":
			add("classification_predicted_category")
			add("classification_confidence_score")
			add("classification_is_flagged")
			add("classification_origin")
		default:
			add(f.Column)
		}
	}
	return cols
}

// MustField returns a schema field by name and panics when it is missing.
func MustField(name string) query.Field {
	f, ok := IssueSchema.Lookup(name)
	if !ok {
		panic("store: unknown field " + name)
	}
	return f
}
