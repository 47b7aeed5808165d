package query

import (
	"strings"

	"GistAPI/internal/apperr"
)

type fieldParser struct {
	s   string
	pos int
}

// ParseFields parses a fields expression such as
// `id,name~rename(label),parent[id,name],userGroups::size,{attrUid},*,!code`.
func ParseFields(expr string) ([]Field, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	p := &fieldParser{s: expr}
	return p.list(nil, nil, 0)
}

func (p *fieldParser) eof() bool { return p.pos >= len(p.s) }

func (p *fieldParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *fieldParser) skipSpace() {
	for !p.eof() && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *fieldParser) fail(expected ...string) error {
	found := "end of input"
	if !p.eof() {
		found = string(p.s[p.pos])
	}
	return apperr.ErrParse("fields", p.pos, found, expected...)
}

func (p *fieldParser) list(prefix, names []string, depth int) ([]Field, error) {
	var out []Field
	for {
		items, err := p.item(prefix, names, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		p.skipSpace()
		if p.eof() {
			return out, nil
		}
		switch c := p.peek(); {
		case c == ',':
			p.pos++
		case (c == ']' || c == ')') && depth > 0:
			return out, nil
		default:
			return nil, p.fail(",", "[", "]")
		}
	}
}

func (p *fieldParser) item(prefix, names []string, depth int) ([]Field, error) {
	p.skipSpace()
	f := Field{}
	if c := p.peek(); c == '!' || c == '-' {
		f.Exclude = true
		p.pos++
	}

	var path []string
	switch c := p.peek(); {
	case c == '*':
		p.pos++
		f.Preset = "default"
	case c == ':' && !strings.HasPrefix(p.s[p.pos:], "::"):
		p.pos++
		name := p.ident()
		if name == "" {
			return nil, p.fail("preset name")
		}
		f.Preset = name
	case c == '.':
		p.pos++
		path = []string{SelfPath}
	case c == '{':
		p.pos++
		uid := p.ident()
		if uid == "" {
			return nil, p.fail("attribute id")
		}
		if p.peek() != '}' {
			return nil, p.fail("}")
		}
		p.pos++
		path = []string{"{" + uid + "}"}
	default:
		var err error
		if path, err = p.path(); err != nil {
			return nil, err
		}
	}

	if f.Preset != "" {
		if f.Exclude {
			return nil, apperr.ErrValidation("Presets cannot be excluded: `%s`.", p.s)
		}
		f.Path = clone(prefix)
		f.Names = clone(names)
		return []Field{f}, nil
	}

	f.Path = append(clone(prefix), path...)
	f.Names = append(clone(names), path...)

	// nested: a[b,c] или a(b,c)
	var children []Field
	if c := p.peek(); (c == '[' || c == '(') && path[0] != SelfPath {
		closer := byte(']')
		if c == '(' {
			closer = ')'
		}
		p.pos++
		var err error
		children, err = p.list(f.Path, f.Names, depth+1)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != closer {
			return nil, p.fail(",", string(closer))
		}
		p.pos++
	}

	if err := p.suffixes(&f); err != nil {
		return nil, err
	}

	if children == nil {
		return []Field{f}, nil
	}
	if f.Exclude {
		return nil, apperr.ErrValidation("Nested fields cannot be excluded: `%s`.", strings.Join(f.Path, "."))
	}
	if f.Transform != "" {
		return nil, apperr.ErrValidation("Transformation `%s` cannot be applied to nested field `%s`.", f.Transform, strings.Join(f.Path, "."))
	}
	// переименование родителя применяется ко всем вложенным полям
	at := len(f.Path) - 1
	for i := range children {
		children[i].Names[at] = f.Names[at]
	}
	return children, nil
}

// path reads ident ('.' ident)*.
func (p *fieldParser) path() ([]string, error) {
	var segs []string
	for {
		name := p.ident()
		if name == "" {
			return nil, p.fail("property name")
		}
		segs = append(segs, name)
		if p.peek() != '.' {
			return segs, nil
		}
		p.pos++
	}
}

func (p *fieldParser) ident() string {
	start := p.pos
	for !p.eof() && isIdentChar(p.s[p.pos]) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// suffixes reads any number of ::transform(arg), ~transform(arg) or @transform(arg).
func (p *fieldParser) suffixes(f *Field) error {
	for {
		switch {
		case strings.HasPrefix(p.s[p.pos:], "::"):
			p.pos += 2
		case p.peek() == '~' || p.peek() == '@':
			p.pos++
		default:
			return nil
		}
		namePos := p.pos
		name := p.transformName()
		if name == "" {
			return p.fail("transformation")
		}
		arg := ""
		if p.peek() == '(' {
			p.pos++
			end := strings.IndexByte(p.s[p.pos:], ')')
			if end < 0 {
				p.pos = len(p.s)
				return p.fail(")")
			}
			arg = strings.TrimSpace(p.s[p.pos : p.pos+end])
			p.pos += end + 1
		}
		t, ok := transformNames[normalizeTransform(name)]
		if !ok {
			return apperr.ErrValidation("Unknown transformation `%s` at position %d.", name, namePos)
		}
		switch t {
		case "rename":
			if arg == "" {
				return apperr.ErrValidation("Transformation `rename` needs an alias at position %d.", namePos)
			}
			f.Names[len(f.Names)-1] = arg
		case TransformPluck, TransformMember, TransformNotMember:
			if arg == "" && t != TransformPluck {
				return apperr.ErrValidation("Transformation `%s` needs an argument at position %d.", t, namePos)
			}
			f.Transform, f.Arg = t, arg
		default:
			f.Transform = t
		}
	}
}

func (p *fieldParser) transformName() string {
	start := p.pos
	for !p.eof() && (isIdentChar(p.s[p.pos]) || p.s[p.pos] == '-') {
		p.pos++
	}
	return p.s[start:p.pos]
}

var transformNames = map[string]Transform{
	"none":       TransformNone,
	"auto":       TransformAuto,
	"size":       TransformSize,
	"isempty":    TransformIsEmpty,
	"isnotempty": TransformIsNotEmpty,
	"ids":        TransformIDs,
	"idobjects":  TransformIDObjects,
	"pluck":      TransformPluck,
	"member":     TransformMember,
	"notmember":  TransformNotMember,
	"rename":     "rename",
}

func normalizeTransform(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", ""))
}

func clone(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
