package query

import (
	"net/url"
	"strings"
)

// FromURLValues decodes a URL query into RawParams. Bracket keys nest one
// level, so price[gte]=100 becomes {"price": {"gte": "100"}}. Single values
// collapse to a string; repeated values stay a []string. Malformed bracket
// keys are kept verbatim and later dropped by the allow-list.
func FromURLValues(values url.Values) RawParams {
	params := make(RawParams, len(values))
	for key, vals := range values {
		v := collapse(vals)
		base, sub, ok := splitBracket(key)
		if !ok {
			params[key] = v
			continue
		}
		nested, isMap := params[base].(map[string]any)
		if !isMap {
			nested = make(map[string]any)
			params[base] = nested
		}
		nested[sub] = v
	}
	return params
}

func collapse(vals []string) any {
	if len(vals) == 1 {
		return vals[0]
	}
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// splitBracket splits "field[op]" into ("field", "op").
func splitBracket(key string) (string, string, bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	sub := key[open+1 : len(key)-1]
	if sub == "" || strings.ContainsAny(sub, "[]") {
		return "", "", false
	}
	return key[:open], sub, true
}
