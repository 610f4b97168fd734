// Package query turns untrusted list-query parameters into a filter
// expression over allow-listed product fields.
package query

import (
	"sort"
)

// Op is a range comparison operator.
type Op string

const (
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// IsRangeOp reports whether s names a range operator. Only the exact
// operator token matches.
func IsRangeOp(s string) bool {
	switch Op(s) {
	case OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// Expression is a node of a filter tree: Equals, Regex, Range or And.
type Expression interface {
	expression()
}

// Equals matches records whose Field equals Value. Value is a string for
// text fields and a float64 for numeric fields.
type Equals struct {
	Field string
	Value any
}

// Regex matches records whose Field contains a match of Pattern anywhere.
type Regex struct {
	Field           string
	Pattern         string
	CaseInsensitive bool
}

// Range compares a numeric Field against Value.
type Range struct {
	Field string
	Op    Op
	Value float64
}

// And matches records that satisfy every child. An empty And matches all.
type And struct {
	Children []Expression
}

func (Equals) expression() {}
func (Regex) expression()  {}
func (Range) expression()  {}
func (And) expression()    {}

// MatchAll returns the expression that matches every record.
func MatchAll() And {
	return And{}
}

// Walk calls fn for every node of expr in depth-first order.
func Walk(expr Expression, fn func(Expression)) {
	fn(expr)
	if and, ok := expr.(And); ok {
		for _, c := range and.Children {
			Walk(c, fn)
		}
	}
}

// LeafFields returns the sorted, de-duplicated field names referenced by
// the leaves of expr.
func LeafFields(expr Expression) []string {
	seen := make(map[string]struct{})
	Walk(expr, func(e Expression) {
		switch n := e.(type) {
		case Equals:
			seen[n.Field] = struct{}{}
		case Regex:
			seen[n.Field] = struct{}{}
		case Range:
			seen[n.Field] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
