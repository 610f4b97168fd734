package mongo

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/query"
)

// neverMatch is a filter no document satisfies.
var neverMatch = bson.D{{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}}}

var rangeOps = map[query.Op]string{
	query.OpGt:  "$gt",
	query.OpGte: "$gte",
	query.OpLt:  "$lt",
	query.OpLte: "$lte",
}

// toFilter translates expr into a BSON filter. Field names come from the
// allow-list only; nodes naming other fields never match.
func toFilter(expr query.Expression) bson.D {
	switch n := expr.(type) {
	case query.And:
		if len(n.Children) == 0 {
			return bson.D{}
		}
		clauses := make(bson.A, 0, len(n.Children))
		for _, c := range n.Children {
			clauses = append(clauses, toFilter(c))
		}
		return bson.D{{Key: "$and", Value: clauses}}

	case query.Equals:
		field, ok := domain.LookupField(n.Field)
		if !ok {
			return neverMatch
		}
		return bson.D{{Key: path(field), Value: bson.D{{Key: "$eq", Value: n.Value}}}}

	case query.Regex:
		field, ok := domain.LookupField(n.Field)
		if !ok || field.Kind != domain.KindString {
			return neverMatch
		}
		opts := ""
		if n.CaseInsensitive {
			opts = "i"
		}
		return bson.D{{Key: path(field), Value: primitive.Regex{Pattern: n.Pattern, Options: opts}}}

	case query.Range:
		field, ok := domain.LookupField(n.Field)
		op, known := rangeOps[n.Op]
		if !ok || !known || field.Kind != domain.KindNumber {
			return neverMatch
		}
		return bson.D{{Key: path(field), Value: bson.D{{Key: op, Value: n.Value}}}}

	default:
		return neverMatch
	}
}

func path(field domain.Field) string {
	return strings.Join(field.Path, ".")
}
