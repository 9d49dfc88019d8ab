package query

// Op is a comparison operator. The set is closed: backends translate each
// value through a fixed table and reject anything else.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

var ops = map[string]Op{
	"eq":  OpEq,
	"gt":  OpGt,
	"gte": OpGte,
	"lt":  OpLt,
	"lte": OpLte,
	"in":  OpIn,
}

// Predicate is a node of a compiled filter: And, Comparison or In.
type Predicate interface {
	predicate()
}

// And matches when every term matches. An empty And matches everything.
type And struct {
	Terms []Predicate
}

// Comparison compares a field against a single typed value.
// Op is one of eq, gt, gte, lt, lte.
type Comparison struct {
	Field Field
	Op    Op
	Value any
}

// In matches when the field equals any of Values.
type In struct {
	Field  Field
	Values []any
}

func (And) predicate()        {}
func (Comparison) predicate() {}
func (In) predicate()         {}

// Walk calls fn for every node of p, depth first.
func Walk(p Predicate, fn func(Predicate)) {
	if p == nil {
		return
	}
	fn(p)
	if and, ok := p.(And); ok {
		for _, t := range and.Terms {
			Walk(t, fn)
		}
	}
}
