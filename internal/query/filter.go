package query

import (
	"strings"

	"GistAPI/internal/apperr"
)

type operatorSpec struct {
	op      Operator
	negated bool
}

// operatorTokens maps every accepted operator token. A leading `!` negates
// any of them.
var operatorTokens = map[string]operatorSpec{
	"eq":         {OpEq, false},
	"ne":         {OpEq, true},
	"neq":        {OpEq, true},
	"lt":         {OpLt, false},
	"le":         {OpLe, false},
	"lte":        {OpLe, false},
	"gt":         {OpGt, false},
	"ge":         {OpGe, false},
	"gte":        {OpGe, false},
	"like":       {OpLike, false},
	"ilike":      {OpILike, false},
	"$like":      {OpStartsLike, false},
	"startsLike": {OpStartsLike, false},
	"$ilike":     {OpStartsWith, false},
	"startsWith": {OpStartsWith, false},
	"like$":      {OpEndsLike, false},
	"endsLike":   {OpEndsLike, false},
	"ilike$":     {OpEndsWith, false},
	"endsWith":   {OpEndsWith, false},
	"in":         {OpIn, false},
	"null":       {OpNull, false},
	"empty":      {OpEmpty, false},
}

// ParseFilters parses one filter parameter holding comma separated
// property:operator:value triples. Bracketed values may contain commas.
func ParseFilters(expr string) ([]Filter, error) {
	var out []Filter
	start, depth := 0, 0
	for i := 0; i <= len(expr); i++ {
		if i < len(expr) {
			switch expr[i] {
			case '[':
				depth++
				continue
			case ']':
				depth--
				continue
			case ',':
				if depth > 0 {
					continue
				}
			default:
				continue
			}
		}
		if depth > 0 {
			return nil, apperr.ErrParse("filter", len(expr), "end of input", "]")
		}
		if strings.TrimSpace(expr[start:i]) != "" {
			f, err := parseTriple(expr[start:i], start)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		start = i + 1
	}
	return out, nil
}

func parseTriple(s string, offset int) (Filter, error) {
	lead := len(s) - len(strings.TrimLeft(s, " "))
	s = strings.TrimSpace(s)
	offset += lead

	// 1) путь свойства
	i := 0
	for i < len(s) && s[i] != ':' {
		c := s[i]
		if !isIdentChar(c) && c != '.' && c != '{' && c != '}' {
			return Filter{}, apperr.ErrParse("filter", offset+i, string(c), ":")
		}
		i++
	}
	if i == 0 {
		return Filter{}, apperr.ErrParse("filter", offset, foundAt(s, 0), "property name")
	}
	if i == len(s) {
		return Filter{}, apperr.ErrParse("filter", offset+i, "end of input", ":")
	}
	path := strings.Split(s[:i], ".")
	for _, seg := range path {
		if seg == "" {
			return Filter{}, apperr.ErrParse("filter", offset, s[:i], "property name")
		}
	}

	// 2) оператор
	rest := s[i+1:]
	opEnd := strings.IndexByte(rest, ':')
	token := rest
	value := ""
	hasValue := false
	if opEnd >= 0 {
		token, value, hasValue = rest[:opEnd], rest[opEnd+1:], true
	}
	if token == "" {
		return Filter{}, apperr.ErrParse("filter", offset+i+1, foundAt(rest, 0), "operator")
	}
	negated := false
	base := token
	if strings.HasPrefix(token, "!") {
		negated, base = true, token[1:]
	}
	spec, ok := operatorTokens[base]
	if !ok {
		return Filter{}, apperr.ErrValidation("Unknown filter operator `%s` in `%s`.", token, s)
	}

	f := Filter{
		Path:     path,
		Operator: spec.op,
		Negated:  spec.negated != negated,
		Token:    token,
	}

	// 3) значение: literal или [a,b,c]
	if hasValue {
		v := strings.TrimSpace(value)
		switch {
		case strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]"):
			inner := strings.TrimSpace(v[1 : len(v)-1])
			if inner != "" {
				for _, item := range strings.Split(inner, ",") {
					f.Values = append(f.Values, strings.TrimSpace(item))
				}
			}
		case v != "":
			f.Values = []string{v}
		}
	}
	return f, nil
}

func foundAt(s string, i int) string {
	if i >= len(s) {
		return "end of input"
	}
	return string(s[i])
}
