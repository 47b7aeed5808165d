package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
)

// attributeUID is embedded into SQL as a literal, so it is restricted to identifier characters.
var attributeUID = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// now is replaced in tests.
var now = time.Now

func attributeExpr(alias, column, uid string) string {
	return fmt.Sprintf("%s.%s -> '%s' ->> 'value'", alias, column, uid)
}

// convertValue types a filter argument by the kind of the filtered property.
func convertValue(f query.Filter, kind, raw string) (any, error) {
	switch kind {
	case model.KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, badValue(f, raw, "number")
		}
		return n, nil
	case model.KindFloat:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, badValue(f, raw, "number")
		}
		return n, nil
	case model.KindBool:
		switch strings.ToLower(raw) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, badValue(f, raw, "boolean")
	case model.KindDate, model.KindDateTime:
		return parseTime(f, raw)
	}
	return raw, nil
}

func parseTime(f query.Filter, raw string) (time.Time, error) {
	if strings.EqualFold(raw, "now") {
		return now(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, badValue(f, raw, "date")
}

func badValue(f query.Filter, raw, what string) error {
	return apperr.ErrValidation("Filter `%s` has argument `%s` that is not a valid %s.", f, raw, what)
}

// likePattern: `*` and `?` are wildcards when present, otherwise the value
// matches anywhere (like, ilike), at the start or at the end.
func likePattern(op query.Operator, v string) string {
	switch op {
	case query.OpStartsWith, query.OpStartsLike:
		return v + "%"
	case query.OpEndsWith, query.OpEndsLike:
		return "%" + v
	}
	if strings.ContainsAny(v, "*?") {
		return strings.NewReplacer("*", "%", "?", "_").Replace(v)
	}
	return "%" + v + "%"
}
