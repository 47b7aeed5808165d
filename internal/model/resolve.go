package model

import (
	"GistAPI/internal/apperr"
)

// Resolve walks path segment by segment. Every segment but the last must be a
// reference or a collection; the walk never goes deeper than the path itself.
func (m *Model) Resolve(path []string) ([]*Property, error) {
	if len(path) == 0 {
		return nil, apperr.ErrValidation("Empty property path in `%s`.", m.Name)
	}
	chain := make([]*Property, 0, len(path))
	cur := m
	for i, seg := range path {
		p, ok := cur.Properties.Get(seg)
		if !ok {
			return nil, apperr.ErrValidation("Property `%s` does not exist in `%s`.", seg, cur.Name)
		}
		chain = append(chain, p)
		if i == len(path)-1 {
			break
		}
		if !p.IsReference() && !p.IsCollection() {
			return nil, apperr.ErrValidation("Property `%s` of `%s` is not a reference or collection and cannot be traversed.", seg, cur.Name)
		}
		cur = p.Target()
		if cur == nil {
			return nil, apperr.ErrValidation("Property `%s` of `%s` points at an unknown schema.", seg, p.Owner().Name)
		}
	}
	return chain, nil
}
