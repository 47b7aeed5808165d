package query

import (
	"strings"

	"GistAPI/internal/apperr"
)

// ParseOrders parses `name,created:desc,parent.name:asc`.
func ParseOrders(expr string) ([]Order, error) {
	var out []Order
	offset := 0
	for _, part := range strings.Split(expr, ",") {
		start := offset
		offset += len(part) + 1
		lead := len(part) - len(strings.TrimLeft(part, " "))
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start += lead

		prop, dir, hasDir := strings.Cut(part, ":")
		for i := 0; i < len(prop); i++ {
			if c := prop[i]; !isIdentChar(c) && c != '.' {
				return nil, apperr.ErrParse("order", start+i, string(c), ",", ":")
			}
		}
		if prop == "" {
			return nil, apperr.ErrParse("order", start, foundAt(part, 0), "property name")
		}
		o := Order{Path: strings.Split(prop, "."), Direction: Asc}
		for _, seg := range o.Path {
			if seg == "" {
				return nil, apperr.ErrParse("order", start, prop, "property name")
			}
		}
		if hasDir {
			switch strings.ToLower(strings.TrimSpace(dir)) {
			case "asc":
			case "desc":
				o.Direction = Desc
			default:
				pos := start + len(prop) + 1
				return nil, apperr.ErrParse("order", pos, foundAt(dir, 0), "asc", "desc")
			}
		}
		out = append(out, o)
	}
	return out, nil
}
