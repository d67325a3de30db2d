package client

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/squidcloud/squid-go/internal/codec"
	"github.com/squidcloud/squid-go/pkg/constants"
)

// Operator is a comparison used in a query condition.
type Operator string

const (
	OpEq    Operator = "=="
	OpNeq   Operator = "!="
	OpLt    Operator = "<"
	OpLte   Operator = "<="
	OpGt    Operator = ">"
	OpGte   Operator = ">="
	OpIn    Operator = "in"
	OpNotIn Operator = "not in"
	OpLike  Operator = "like"
)

func (op Operator) valid() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpIn, OpNotIn, OpLike:
		return true
	}
	return false
}

// Condition filters documents on one field.
type Condition struct {
	Field string   `cbor:"field" json:"field"`
	Op    Operator `cbor:"op" json:"op"`
	Value any      `cbor:"value" json:"value"`
}

// SortOrder orders results by one field.
type SortOrder struct {
	Field string `cbor:"field" json:"field"`
	Asc   bool   `cbor:"asc" json:"asc"`
}

// SerializedQuery is the connection-independent description of a query. It is
// a plain value: builder methods return modified copies, and two descriptors
// with the same Key describe the same query.
type SerializedQuery struct {
	Collection    string      `cbor:"collection" json:"collection"`
	IntegrationID string      `cbor:"integrationId,omitempty" json:"integrationId,omitempty"`
	Conditions    []Condition `cbor:"conditions,omitempty" json:"conditions,omitempty"`
	Sort          []SortOrder `cbor:"sort,omitempty" json:"sort,omitempty"`
	Limit         int         `cbor:"limit,omitempty" json:"limit,omitempty"`
	Dereference   bool        `cbor:"dereference,omitempty" json:"dereference,omitempty"`
}

// NewQuery describes every document of a collection.
func NewQuery(collection, integrationID string) SerializedQuery {
	return SerializedQuery{Collection: collection, IntegrationID: integrationID}
}

func (q SerializedQuery) clone() SerializedQuery {
	out := q
	out.Conditions = append([]Condition(nil), q.Conditions...)
	out.Sort = append([]SortOrder(nil), q.Sort...)
	return out
}

func (q SerializedQuery) Where(field string, op Operator, value any) SerializedQuery {
	out := q.clone()
	out.Conditions = append(out.Conditions, Condition{Field: field, Op: op, Value: value})
	return out
}

func (q SerializedQuery) Eq(field string, value any) SerializedQuery {
	return q.Where(field, OpEq, value)
}

func (q SerializedQuery) SortBy(field string, asc bool) SerializedQuery {
	out := q.clone()
	out.Sort = append(out.Sort, SortOrder{Field: field, Asc: asc})
	return out
}

func (q SerializedQuery) WithLimit(n int) SerializedQuery {
	out := q.clone()
	out.Limit = n
	return out
}

func (q SerializedQuery) WithDereference() SerializedQuery {
	out := q.clone()
	out.Dereference = true
	return out
}

// Key is the identity of the descriptor for deduplication.
func (q SerializedQuery) Key() string {
	return codec.Key(q)
}

// Validate reports descriptors no backend can run.
func (q SerializedQuery) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: query without collection", constants.ErrPrecondition)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", constants.ErrPrecondition, q.Limit)
	}
	for _, c := range q.Conditions {
		if c.Field == "" {
			return fmt.Errorf("%w: condition without field", constants.ErrPrecondition)
		}
		if !c.Op.valid() {
			return fmt.Errorf("%w: unknown operator %q", constants.ErrPrecondition, c.Op)
		}
	}
	return nil
}

// Matches evaluates the conditions against doc in memory.
func (q SerializedQuery) Matches(doc DocumentData) bool {
	for _, c := range q.Conditions {
		if !c.matches(doc[c.Field]) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits docs in memory, the way a backend without
// native support would evaluate the descriptor.
func (q SerializedQuery) Apply(docs []DocumentData) []DocumentData {
	out := make([]DocumentData, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}
	if len(q.Sort) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, s := range q.Sort {
				c, ok := compare(out[i][s.Field], out[j][s.Field])
				if !ok || c == 0 {
					continue
				}
				if s.Asc {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (c Condition) matches(v any) bool {
	switch c.Op {
	case OpEq:
		return equal(v, c.Value)
	case OpNeq:
		return !equal(v, c.Value)
	case OpLt, OpLte, OpGt, OpGte:
		cmp, ok := compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case OpIn, OpNotIn:
		found := false
		rv := reflect.ValueOf(c.Value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				if equal(v, rv.Index(i).Interface()) {
					found = true
					break
				}
			}
		}
		return found == (c.Op == OpIn)
	case OpLike:
		s, ok := v.(string)
		pattern, pok := c.Value.(string)
		if !ok || !pok {
			return false
		}
		return likeRegexp(pattern).MatchString(s)
	}
	return false
}

func likeRegexp(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "%")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(?is)^" + strings.Join(parts, ".*") + "$")
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers of any Go numeric kind, strings and bools.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
