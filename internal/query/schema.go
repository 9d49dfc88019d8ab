// Package query compiles untrusted list requests into typed query plans.
//
// A request is a flat key/value map (usually the URL query string). Keys
// either name a reserved directive (select, sort, page, limit) or a filter of
// the form field or field[op]. Only fields declared in a Schema and the
// operators eq, gt, gte, lt, lte and in are accepted; everything else fails
// with ErrInvalidQuery. Values are parsed into the field's Kind, so a Plan
// never carries raw client text in operator or column position.
package query

import (
	"fmt"
	"sort"
)

// Kind is the value type of a field.
type Kind int

const (
	KindString Kind = iota
	KindEnum
	KindNumber
	KindBool
	KindTime
	KindID
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindID:
		return "id"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ordered reports whether range operators make sense for the kind.
func (k Kind) ordered() bool {
	return k == KindString || k == KindNumber || k == KindTime
}

// Field describes one queryable attribute.
type Field struct {
	// Name is the client-facing name, e.g. "createdAt" or "location.address".
	Name string
	// Column is the SQL column backing the field.
	Column string
	// Path is the document path backing the field.
	Path string
	Kind Kind
	// Enum lists the allowed values for KindEnum.
	Enum []string

	Filterable bool
	Sortable   bool
	Selectable bool
}

// Schema is the allow-list of fields a Compiler accepts.
type Schema struct {
	fields map[string]Field
	names  []string
}

// NewSchema builds a schema. Duplicate names panic; schemas are static.
func NewSchema(fields ...Field) Schema {
	s := Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if _, dup := s.fields[f.Name]; dup {
			panic("query: duplicate field " + f.Name)
		}
		s.fields[f.Name] = f
		s.names = append(s.names, f.Name)
	}
	sort.Strings(s.names)
	return s
}

// Lookup returns the field registered under name.
func (s Schema) Lookup(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns all fields sorted by name.
func (s Schema) Fields() []Field {
	out := make([]Field, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.fields[n])
	}
	return out
}
