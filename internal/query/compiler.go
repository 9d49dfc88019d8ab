package query

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidQuery is returned for any request outside the accepted grammar.
var ErrInvalidQuery = errors.New("invalid query")

// Reserved request keys.
const (
	KeySelect = "select"
	KeySort   = "sort"
	KeyPage   = "page"
	KeyLimit  = "limit"
)

const maxValueLen = 256

// filterKey matches "field" or "field[op]"; field segments are identifiers
// joined by dots.
var filterKey = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*(?:\.[A-Za-z][A-Za-z0-9_]*)*)(?:\[([a-z]+)\])?$`)

// Options bound the work a single plan may request.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	// DefaultSort uses the sort directive syntax, e.g. "-createdAt".
	DefaultSort string
	MaxInValues int
}

// DefaultOptions returns page size 10, at most 100 per page, newest first.
func DefaultOptions() Options {
	return Options{
		DefaultLimit: 10,
		MaxLimit:     100,
		DefaultSort:  "-createdAt",
		MaxInValues:  50,
	}
}

// Compiler turns untrusted request maps into Plans.
// It is immutable and safe for concurrent use.
type Compiler struct {
	schema      Schema
	opts        Options
	defaultSort []SortKey
}

// NewCompiler validates opts against schema.
func NewCompiler(schema Schema, opts Options) (*Compiler, error) {
	if opts.MaxLimit < 1 {
		return nil, errors.New("max limit must be positive")
	}
	if opts.DefaultLimit < 1 || opts.DefaultLimit > opts.MaxLimit {
		return nil, fmt.Errorf("default limit must be within [1, %d]", opts.MaxLimit)
	}
	if opts.MaxInValues < 1 {
		opts.MaxInValues = DefaultOptions().MaxInValues
	}
	c := &Compiler{schema: schema, opts: opts}
	if opts.DefaultSort != "" {
		keys, err := c.compileSort(opts.DefaultSort)
		if err != nil {
			return nil, fmt.Errorf("default sort: %w", err)
		}
		c.defaultSort = keys
	}
	return c, nil
}

// Compile builds a Plan from params. Filters are emitted in key order so the
// same request always yields the same plan.
func (c *Compiler) Compile(params map[string]string) (*Plan, error) {
	plan := &Plan{
		Page:  parsePositive(params[KeyPage], 1, math.MaxInt32),
		Limit: parsePositive(params[KeyLimit], c.opts.DefaultLimit, c.opts.MaxLimit),
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		switch k {
		case KeySelect, KeySort, KeyPage, KeyLimit:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		term, err := c.compileFilter(k, params[k])
		if err != nil {
			return nil, err
		}
		plan.Filter.Terms = append(plan.Filter.Terms, term)
	}

	if raw, ok := params[KeySelect]; ok && strings.TrimSpace(raw) != "" {
		fields, err := c.compileSelect(raw)
		if err != nil {
			return nil, err
		}
		plan.Select = fields
	}

	plan.Sort = c.defaultSort
	if raw, ok := params[KeySort]; ok && strings.TrimSpace(raw) != "" {
		keys, err := c.compileSort(raw)
		if err != nil {
			return nil, err
		}
		plan.Sort = keys
	}

	return plan, nil
}

func (c *Compiler) compileFilter(key, raw string) (Predicate, error) {
	m := filterKey.FindStringSubmatch(key)
	if m == nil {
		return nil, fmt.Errorf("%w: malformed filter key %q", ErrInvalidQuery, key)
	}
	name, opToken := m[1], m[2]

	field, ok := c.schema.Lookup(name)
	if !ok || !field.Filterable {
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidQuery, name)
	}

	op := OpEq
	if opToken != "" {
		op, ok = ops[opToken]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, opToken)
		}
	}

	if op == OpIn {
		parts := strings.Split(raw, ",")
		if len(parts) > c.opts.MaxInValues {
			return nil, fmt.Errorf("%w: %s[in] accepts at most %d values", ErrInvalidQuery, name, c.opts.MaxInValues)
		}
		values := make([]any, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			v, err := parseValue(field, p)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: %s[in] needs at least one value", ErrInvalidQuery, name)
		}
		return In{Field: field, Values: values}, nil
	}

	if op != OpEq && !field.Kind.ordered() {
		return nil, fmt.Errorf("%w: operator %s not allowed on %s field %q", ErrInvalidQuery, op, field.Kind, name)
	}
	v, err := parseValue(field, strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return Comparison{Field: field, Op: op, Value: v}, nil
}

func (c *Compiler) compileSelect(raw string) ([]Field, error) {
	var out []Field
	seen := map[string]bool{}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		f, ok := c.schema.Lookup(name)
		if !ok || !f.Selectable {
			return nil, fmt.Errorf("%w: cannot select %q", ErrInvalidQuery, name)
		}
		seen[name] = true
		out = append(out, f)
	}
	return out, nil
}

func (c *Compiler) compileSort(raw string) ([]SortKey, error) {
	var out []SortKey
	seen := map[string]bool{}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		desc := strings.HasPrefix(tok, "-")
		name := strings.TrimPrefix(tok, "-")
		f, ok := c.schema.Lookup(name)
		if !ok || !f.Sortable {
			return nil, fmt.Errorf("%w: cannot sort by %q", ErrInvalidQuery, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, SortKey{Field: f, Desc: desc})
	}
	return out, nil
}

func parseValue(f Field, raw string) (any, error) {
	if len(raw) > maxValueLen {
		return nil, fmt.Errorf("%w: value for %q too long", ErrInvalidQuery, f.Name)
	}
	switch f.Kind {
	case KindString:
		return raw, nil
	case KindEnum:
		for _, e := range f.Enum {
			if e == raw {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not a valid %s", ErrInvalidQuery, raw, f.Name)
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%w: %s expects a number", ErrInvalidQuery, f.Name)
		}
		return n, nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects true or false", ErrInvalidQuery, f.Name)
		}
		return b, nil
	case KindTime:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t.UTC(), nil
		}
		return nil, fmt.Errorf("%w: %s expects an RFC3339 time or YYYY-MM-DD date", ErrInvalidQuery, f.Name)
	case KindID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects an id", ErrInvalidQuery, f.Name)
		}
		return id, nil
	}
	return nil, fmt.Errorf("%w: field %q is not filterable", ErrInvalidQuery, f.Name)
}

// parsePositive returns def for missing or non-numeric input and clamps
// numeric input into [1, max].
func parsePositive(raw string, def, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}
