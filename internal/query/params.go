package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"GistAPI/internal/apperr"
)

// Defaults are the paging bounds applied when reading request parameters.
type Defaults struct {
	PageSize    int
	MaxPageSize int
}

// FromValues reads a Query from URL parameters. fields and order may be
// repeated and are joined; every filter parameter may hold several triples.
func FromValues(values url.Values, d Defaults) (*Query, error) {
	if d.PageSize < 1 {
		d.PageSize = 50
	}
	if d.MaxPageSize < d.PageSize {
		d.MaxPageSize = d.PageSize
	}

	q := &Query{
		Page:       1,
		PageSize:   d.PageSize,
		Auto:       AutoM,
		References: true,
		Translate:  true,
		Locale:     strings.TrimSpace(values.Get("locale")),
	}

	q.RawFields = strings.Join(values["fields"], ",")
	fields, err := ParseFields(q.RawFields)
	if err != nil {
		return nil, err
	}
	q.Fields = fields

	for _, raw := range values["filter"] {
		filters, err := ParseFilters(raw)
		if err != nil {
			return nil, err
		}
		q.RawFilter = append(q.RawFilter, raw)
		q.Filters = append(q.Filters, filters...)
	}

	q.RawOrder = strings.Join(values["order"], ",")
	if q.Orders, err = ParseOrders(q.RawOrder); err != nil {
		return nil, err
	}

	if q.Page, err = intParam(values, "page", 1); err != nil {
		return nil, err
	}
	if q.PageSize, err = intParam(values, "pageSize", d.PageSize); err != nil {
		return nil, err
	}
	q.Page = max(q.Page, 1)
	q.PageSize = min(max(q.PageSize, 1), d.MaxPageSize)

	flags := []struct {
		name string
		dst  *bool
	}{
		{"headless", &q.Headless},
		{"describe", &q.Describe},
		{"total", &q.Total},
		{"absoluteUrls", &q.AbsoluteURLs},
		{"includeAll", &q.IncludeAll},
		{"references", &q.References},
		{"translate", &q.Translate},
		{"inverse", &q.Inverse},
	}
	for _, f := range flags {
		if *f.dst, err = boolParam(values, f.name, *f.dst); err != nil {
			return nil, err
		}
	}

	switch j := strings.ToUpper(strings.TrimSpace(values.Get("rootJunction"))); j {
	case "", "AND":
	case "OR":
		q.AnyFilter = true
	default:
		return nil, apperr.ErrValidation("Parameter `rootJunction` must be `AND` or `OR` but was `%s`.", j)
	}

	if a := strings.ToUpper(strings.TrimSpace(values.Get("auto"))); a != "" {
		switch Auto(a) {
		case AutoS, AutoM, AutoL, AutoXL:
			q.Auto = Auto(a)
		default:
			return nil, apperr.ErrValidation("Parameter `auto` must be one of `S`, `M`, `L` or `XL` but was `%s`.", a)
		}
	}
	return q, nil
}

func intParam(values url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, parameterError(name, raw, "number")
	}
	return n, nil
}

// DescribeRequested reads the describe flag on its own, for requests whose
// other parameters failed to parse.
func DescribeRequested(values url.Values) bool {
	b, err := boolParam(values, "describe", false)
	return err == nil && b
}

// boolParam treats a present parameter without value (`?headless`) as true.
func boolParam(values url.Values, name string, fallback bool) (bool, error) {
	raw, ok := values[name]
	if !ok || len(raw) == 0 {
		return fallback, nil
	}
	v := strings.TrimSpace(raw[0])
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, parameterError(name, v, "true", "false")
	}
	return b, nil
}

// parameterError reports the first offending character of a parameter value.
func parameterError(name, raw string, expected ...string) error {
	pos := 0
	if expected[0] == "number" {
		for pos < len(raw) && (raw[pos] == '-' || (raw[pos] >= '0' && raw[pos] <= '9')) {
			pos++
		}
	}
	return &apperr.ParseError{
		Kind:     "parameter",
		Position: pos,
		Expected: expected,
		Found:    foundAt(raw, pos),
		Message: fmt.Sprintf("Illegal parameter expression. Expected %s at position %d of `%s` but found `%s`",
			quoteTokens(expected), pos, name, foundAt(raw, pos)),
	}
}

func quoteTokens(tokens []string) string {
	if len(tokens) == 1 {
		return "`" + tokens[0] + "`"
	}
	return "`" + strings.Join(tokens[:len(tokens)-1], "`, `") + "` or `" + tokens[len(tokens)-1] + "`"
}
