package resolver

import (
	"encoding/json"
	"strings"

	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
)

// translation is one entry of a translations column.
type translation struct {
	Locale   string `json:"locale"`
	Property string `json:"property"`
	Value    string `json:"value"`
}

func (st *rowState) decoded(row []any, col int) ([]translation, error) {
	if ts, ok := st.translations[col]; ok {
		return ts, nil
	}
	ts, err := decodeTranslations(row[col])
	if err != nil {
		return nil, err
	}
	if st.translations == nil {
		st.translations = make(map[int][]translation)
	}
	st.translations[col] = ts
	return ts, nil
}

func decodeTranslations(v any) ([]translation, error) {
	var data []byte
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return nil, apperr.ErrExecution(nil, "Unexpected translations value %T", v)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var ts []translation
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, apperr.ErrExecution(err, "Cannot read translations")
	}
	return ts, nil
}

// translate picks the value of property for the active locale: an exact
// match first, then the language without region.
func (s *shaper) translate(ts []translation, property string) (string, bool) {
	for _, cand := range s.candidates {
		for _, t := range ts {
			if t.Value != "" && strings.EqualFold(t.Property, property) && normalizeLocale(t.Locale) == cand {
				return t.Value, true
			}
		}
	}
	return "", false
}

func localeCandidates(locale string) []string {
	out := model.LocaleCandidates(locale)
	for i, c := range out {
		out[i] = normalizeLocale(c)
	}
	return out
}

// normalizeLocale makes pt-BR, pt_BR and pt_br compare equal.
func normalizeLocale(locale string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "-", "_"))
}
