package query

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/pkg/pagination"
)

// RawParams holds untrusted list-query parameters. Values are string,
// []string or a nested map[string]any produced by bracket syntax.
type RawParams map[string]any

// Reserved keys are search and paging directives, never filter fields.
const (
	KeyKeyword = "keyword"
	KeyPage    = "page"
	KeyLimit   = "limit"
)

// keywordField is the field a keyword search matches against.
const keywordField = "name"

// Compile builds a filter expression from params. It never fails: keys
// outside domain.FilterableFields, unparsable numbers and list-valued
// equality values are dropped. The result is always an And, empty when
// nothing survives.
func Compile(params RawParams) Expression {
	var nodes []Expression

	if kw, ok := keyword(params[KeyKeyword]); ok {
		nodes = append(nodes, Regex{
			Field:           keywordField,
			Pattern:         regexp.QuoteMeta(kw),
			CaseInsensitive: true,
		})
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		switch k {
		case KeyKeyword, KeyPage, KeyLimit:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field, ok := domain.LookupField(k)
		if !ok {
			continue
		}
		switch v := params[k].(type) {
		case map[string]any:
			nodes = append(nodes, ranges(field, v)...)
		default:
			if n, ok := equals(field, v); ok {
				nodes = append(nodes, n)
			}
		}
	}

	return And{Children: nodes}
}

// Page extracts the paging directives from params.
func Page(params RawParams) pagination.Params {
	str := func(key string) string {
		s, _ := scalar(params[key])
		return s
	}
	return pagination.Parse(str(KeyPage), str(KeyLimit))
}

func keyword(v any) (string, bool) {
	switch kw := v.(type) {
	case string:
		return kw, kw != ""
	case []string:
		for _, s := range kw {
			if s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// ranges emits one Range per operator key, in operator order. Keys that
// are not exactly an operator token are ignored.
func ranges(field domain.Field, sub map[string]any) []Expression {
	if field.Kind != domain.KindNumber {
		return nil
	}
	ops := make([]string, 0, len(sub))
	for k := range sub {
		if IsRangeOp(k) {
			ops = append(ops, k)
		}
	}
	sort.Strings(ops)

	var out []Expression
	for _, op := range ops {
		n, ok := number(sub[op])
		if !ok {
			continue
		}
		out = append(out, Range{Field: field.Name, Op: Op(op), Value: n})
	}
	return out
}

func equals(field domain.Field, v any) (Expression, bool) {
	if field.Kind == domain.KindNumber {
		n, ok := number(v)
		if !ok {
			return nil, false
		}
		return Equals{Field: field.Name, Value: n}, true
	}
	s, ok := scalar(v)
	if !ok {
		return nil, false
	}
	return Equals{Field: field.Name, Value: s}, true
}

// scalar returns v as a string when it is a single value.
func scalar(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	}
	return "", false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
