package query

import (
	"regexp"
	"strings"
	"sync"

	"github.com/utafrali/catalogcore/internal/domain"
)

// regexCache holds compiled patterns keyed by flags and pattern.
var regexCache sync.Map

func compileRegex(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	key := pattern
	if caseInsensitive {
		key = "(?i)" + pattern
	}
	if re, ok := regexCache.Load(key); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(key)
	if err != nil {
		return nil, err
	}
	regexCache.Store(key, re)
	return re, nil
}

// Match evaluates expr against p in process. Nodes naming a field p does
// not expose never match; an invalid pattern never matches.
func Match(expr Expression, p *domain.Product) bool {
	switch n := expr.(type) {
	case And:
		for _, c := range n.Children {
			if !Match(c, p) {
				return false
			}
		}
		return true
	case Equals:
		v, ok := p.Value(n.Field)
		if !ok {
			return false
		}
		return v == n.Value
	case Regex:
		v, ok := p.Value(n.Field)
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		re, err := compileRegex(n.Pattern, n.CaseInsensitive)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	case Range:
		v, ok := p.Value(n.Field)
		if !ok {
			return false
		}
		f, ok := v.(float64)
		if !ok {
			return false
		}
		return compare(f, n.Op, n.Value)
	default:
		return false
	}
}

func compare(a float64, op Op, b float64) bool {
	switch op {
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

// String renders expr compactly for logs, e.g.
// and(regex(name,/phone/i),range(price,gte,100)).
func String(expr Expression) string {
	var b strings.Builder
	write(&b, expr)
	return b.String()
}

func write(b *strings.Builder, expr Expression) {
	switch n := expr.(type) {
	case And:
		b.WriteString("and(")
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			write(b, c)
		}
		b.WriteByte(')')
	case Equals:
		b.WriteString("eq(" + n.Field + "," + formatValue(n.Value) + ")")
	case Regex:
		flags := ""
		if n.CaseInsensitive {
			flags = "i"
		}
		b.WriteString("regex(" + n.Field + ",/" + n.Pattern + "/" + flags + ")")
	case Range:
		b.WriteString("range(" + n.Field + "," + string(n.Op) + "," + formatValue(n.Value) + ")")
	}
}

func formatValue(v any) string {
	s, _ := scalar(v)
	return s
}
