package mongostore

import (
	"fmt"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// operators is the only source of "$" keys in a generated filter.
var operators = map[query.Op]string{
	query.OpEq:  "$eq",
	query.OpGt:  "$gt",
	query.OpGte: "$gte",
	query.OpLt:  "$lt",
	query.OpLte: "$lte",
	query.OpIn:  "$in",
}

// Filter translates a predicate tree into a BSON filter.
func Filter(p query.Predicate) (bson.D, error) {
	switch n := p.(type) {
	case nil:
		return bson.D{}, nil
	case query.And:
		parts := make(bson.A, 0, len(n.Terms))
		for _, t := range n.Terms {
			d, err := Filter(t)
			if err != nil {
				return nil, err
			}
			if len(d) > 0 {
				parts = append(parts, d)
			}
		}
		switch len(parts) {
		case 0:
			return bson.D{}, nil
		case 1:
			return parts[0].(bson.D), nil
		}
		return bson.D{{Key: "$and", Value: parts}}, nil
	case query.Comparison:
		op, ok := operators[n.Op]
		if !ok || n.Op == query.OpIn {
			return nil, fmt.Errorf("%w: unsupported operator %q", query.ErrInvalidQuery, n.Op)
		}
		return bson.D{{Key: n.Field.Path, Value: bson.D{{Key: op, Value: docValue(n.Value)}}}}, nil
	case query.In:
		values := make(bson.A, len(n.Values))
		for i, v := range n.Values {
			values[i] = docValue(v)
		}
		return bson.D{{Key: n.Field.Path, Value: bson.D{{Key: operators[query.OpIn], Value: values}}}}, nil
	}
	return nil, fmt.Errorf("%w: unsupported predicate %T", query.ErrInvalidQuery, p)
}

// Sort translates sort keys into a BSON sort document.
func Sort(keys []query.SortKey) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		d = append(d, bson.E{Key: k.Field.Path, Value: dir})
	}
	return d
}

// Projection returns nil for a full document. The owner is always included.
func Projection(fields []query.Field) bson.D {
	if len(fields) == 0 {
		return nil
	}
	d := bson.D{{Key: "owner", Value: 1}}
	for _, f := range fields {
		if f.Path == "_id" || f.Path == "owner" {
			continue
		}
		d = append(d, bson.E{Key: f.Path, Value: 1})
	}
	return d
}

func docValue(v any) any {
	if id, ok := v.(uuid.UUID); ok {
		return id.String()
	}
	return v
}
