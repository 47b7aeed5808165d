package model

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// LocaleNode универсальный узел словаря
type LocaleNode struct {
	Value    string
	Children map[string]*LocaleNode
}

// dictionaries: locale → schema → property → value → label
var dictionaries atomic.Pointer[map[string]*LocaleNode]

// LoadLocales loads the value dictionaries <locale>.yml of fsys. They translate
// the stored values of properties declared with `localize: true`.
func LoadLocales(fsys fs.FS) (int, error) {
	files, err := fs.Glob(fsys, "*.yml")
	if err != nil {
		return 0, err
	}
	loaded := make(map[string]*LocaleNode, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return 0, fmt.Errorf("cannot read locale file %s: %w", file, err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return 0, fmt.Errorf("unmarshal locale error in %s: %w", file, err)
		}
		tag := strings.TrimSuffix(path.Base(file), path.Ext(file))
		loaded[strings.ToLower(tag)] = &LocaleNode{Children: parseNodeMap(raw)}
	}
	dictionaries.Store(&loaded)
	return len(loaded), nil
}

// parseNodeMap рекурсивно строит словарь
func parseNodeMap(raw map[string]any) map[string]*LocaleNode {
	result := make(map[string]*LocaleNode, len(raw))
	for key, val := range raw {
		switch v := val.(type) {
		case string:
			result[key] = &LocaleNode{Value: v}
		case map[string]any:
			result[key] = &LocaleNode{Children: parseNodeMap(v)}
		default:
			result[key] = &LocaleNode{Value: fmt.Sprintf("%v", v)}
		}
	}
	return result
}

func (n *LocaleNode) Lookup(keys ...string) (string, bool) {
	cur := n
	for _, k := range keys {
		if cur == nil {
			return "", false
		}
		next, ok := cur.Children[k]
		if !ok {
			return "", false
		}
		cur = next
	}
	if cur != nil && cur.Value != "" {
		return cur.Value, true
	}
	return "", false
}

// LocalizeValue translates a stored value of a localized property, falling
// back to the value itself.
func LocalizeValue(locale, schema, property, value string) string {
	dicts := dictionaries.Load()
	if dicts == nil || locale == "" {
		return value
	}
	for _, cand := range LocaleCandidates(locale) {
		if node, ok := (*dicts)[cand]; ok {
			if label, ok := node.Lookup(schema, property, value); ok {
				return label
			}
		}
	}
	return value
}

// LocaleCandidates lists the lookup keys for a locale, most specific first:
// "pt_BR" → ["pt_br", "pt"].
func LocaleCandidates(locale string) []string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return nil
	}
	exact := strings.ToLower(locale)
	out := []string{exact}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		if i := strings.IndexAny(exact, "_-"); i > 0 {
			out = append(out, exact[:i])
		}
		return out
	}
	base, _ := tag.Base()
	if b := strings.ToLower(base.String()); b != exact {
		out = append(out, b)
	}
	return out
}
