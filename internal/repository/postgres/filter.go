package postgres

import (
	"fmt"
	"strings"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/query"
)

// whereBuilder renders a filter expression as a parameterized SQL
// predicate over the doc column. Field paths and values are always bound
// as arguments.
type whereBuilder struct {
	args []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// build returns the predicate for expr. Nodes naming unknown fields render
// as FALSE so they can never widen a result.
func (b *whereBuilder) build(expr query.Expression) string {
	switch n := expr.(type) {
	case query.And:
		if len(n.Children) == 0 {
			return "TRUE"
		}
		parts := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			parts = append(parts, b.build(c))
		}
		return "(" + strings.Join(parts, " AND ") + ")"

	case query.Equals:
		field, ok := domain.LookupField(n.Field)
		if !ok {
			return "FALSE"
		}
		return fmt.Sprintf("%s = %s", b.column(field), b.arg(n.Value))

	case query.Regex:
		field, ok := domain.LookupField(n.Field)
		if !ok || field.Kind != domain.KindString {
			return "FALSE"
		}
		op := "~"
		if n.CaseInsensitive {
			op = "~*"
		}
		return fmt.Sprintf("%s %s %s", b.column(field), op, b.arg(n.Pattern))

	case query.Range:
		field, ok := domain.LookupField(n.Field)
		if !ok || field.Kind != domain.KindNumber {
			return "FALSE"
		}
		op, ok := rangeOps[n.Op]
		if !ok {
			return "FALSE"
		}
		return fmt.Sprintf("%s %s %s", b.column(field), op, b.arg(n.Value))

	default:
		return "FALSE"
	}
}

var rangeOps = map[query.Op]string{
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

// column extracts field from doc, cast for numeric comparison.
func (b *whereBuilder) column(field domain.Field) string {
	expr := fmt.Sprintf("(doc #>> %s::text[])", b.arg(field.Path))
	if field.Kind == domain.KindNumber {
		return expr + "::double precision"
	}
	return expr
}
