package pgstore

import (
	"fmt"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// Expression translates a predicate tree into GORM clauses. Columns come
// from the schema and values are bound as parameters.
func Expression(p query.Predicate) (clause.Expression, error) {
	switch n := p.(type) {
	case nil:
		return nil, nil
	case query.And:
		exprs := make([]clause.Expression, 0, len(n.Terms))
		for _, t := range n.Terms {
			e, err := Expression(t)
			if err != nil {
				return nil, err
			}
			if e != nil {
				exprs = append(exprs, e)
			}
		}
		if len(exprs) == 0 {
			return nil, nil
		}
		return clause.And(exprs...), nil
	case query.Comparison:
		col := clause.Column{Name: n.Field.Column}
		v := sqlValue(n.Value)
		switch n.Op {
		case query.OpEq:
			return clause.Eq{Column: col, Value: v}, nil
		case query.OpGt:
			return clause.Gt{Column: col, Value: v}, nil
		case query.OpGte:
			return clause.Gte{Column: col, Value: v}, nil
		case query.OpLt:
			return clause.Lt{Column: col, Value: v}, nil
		case query.OpLte:
			return clause.Lte{Column: col, Value: v}, nil
		}
		return nil, fmt.Errorf("%w: unsupported operator %q", query.ErrInvalidQuery, n.Op)
	case query.In:
		values := make([]interface{}, len(n.Values))
		for i, v := range n.Values {
			values[i] = sqlValue(v)
		}
		return clause.IN{Column: clause.Column{Name: n.Field.Column}, Values: values}, nil
	}
	return nil, fmt.Errorf("%w: unsupported predicate %T", query.ErrInvalidQuery, p)
}

func sqlValue(v any) any {
	if id, ok := v.(uuid.UUID); ok {
		return id.String()
	}
	return v
}
