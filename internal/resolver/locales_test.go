package resolver

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"GistAPI/internal/apperr"
)

const translationsJSON = `[{"locale":"fr","property":"NAME","value":"Norvège"},{"locale":"nb_NO","property":"name","value":"Norge"}]`

func TestDecodeTranslations(t *testing.T) {
	want := []translation{
		{Locale: "fr", Property: "NAME", Value: "Norvège"},
		{Locale: "nb_NO", Property: "name", Value: "Norge"},
	}
	for name, v := range map[string]any{"bytes": []byte(translationsJSON), "string": translationsJSON} {
		got, err := decodeTranslations(v)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s: translations mismatch (-want +got):\n%s", name, diff)
		}
	}

	for _, v := range []any{nil, []byte{}, ""} {
		got, err := decodeTranslations(v)
		if err != nil || got != nil {
			t.Fatalf("decodeTranslations(%#v) = %v, %v; want nil", v, got, err)
		}
	}
}

func TestDecodeTranslationsErrors(t *testing.T) {
	for _, v := range []any{"{broken", 42} {
		_, err := decodeTranslations(v)
		var execErr *apperr.ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("decodeTranslations(%#v) err = %v, want ExecutionError", v, err)
		}
	}
}

func TestRowStateDecodesOnce(t *testing.T) {
	row := []any{"id", []byte(translationsJSON)}
	var st rowState

	first, err := st.decoded(row, 1)
	if err != nil {
		t.Fatalf("decoded: %v", err)
	}
	// повторный вызов берёт значение из кэша, а не из строки
	row[1] = "{broken"
	second, err := st.decoded(row, 1)
	if err != nil {
		t.Fatalf("cached decoded: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cache mismatch (-first +second):\n%s", diff)
	}
}

func TestTranslateFallsBackToLanguage(t *testing.T) {
	ts, err := decodeTranslations(translationsJSON)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		locale string
		want   string
		ok     bool
	}{
		{"fr", "Norvège", true},
		{"fr-CA", "Norvège", true},
		{"nb-NO", "Norge", true},
		{"de", "", false},
	}
	for _, tc := range cases {
		s := &shaper{candidates: localeCandidates(tc.locale)}
		got, ok := s.translate(ts, "name")
		if got != tc.want || ok != tc.ok {
			t.Errorf("translate(%s) = %q, %v; want %q, %v", tc.locale, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTranslatePrefersExactLocalePerProperty(t *testing.T) {
	ts := []translation{
		{Locale: "pt", Property: "NAME", Value: "Nome"},
		{Locale: "pt_BR", Property: "SHORT_NAME", Value: "Curto"},
	}
	s := &shaper{candidates: localeCandidates("pt-BR")}
	if v, ok := s.translate(ts, "name"); !ok || v != "Nome" {
		t.Fatalf("language fallback: got %q %v", v, ok)
	}
	if v, ok := s.translate(ts, "short_name"); !ok || v != "Curto" {
		t.Fatalf("exact match: got %q %v", v, ok)
	}
	if _, ok := s.translate(ts, "description"); ok {
		t.Fatalf("missing property translated")
	}
}
