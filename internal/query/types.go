// Package query holds the parsed form of a Gist request and the parsers for
// the fields, filter and order expressions.
package query

import (
	"strings"
)

type Transform string

const (
	TransformNone       Transform = "none"
	TransformAuto       Transform = "auto"
	TransformSize       Transform = "size"
	TransformIsEmpty    Transform = "isEmpty"
	TransformIsNotEmpty Transform = "isNotEmpty"
	TransformIDs        Transform = "ids"
	TransformIDObjects  Transform = "idObjects"
	TransformPluck      Transform = "pluck"
	TransformMember     Transform = "member"
	TransformNotMember  Transform = "not-member"
)

// Field is one requested output field. Nested expressions are flattened, so
// `parent[name,code]` yields the two fields parent.name and parent.code.
type Field struct {
	Path      []string // property names; "{uid}" addresses an attribute, "." the owner's value
	Names     []string // output key per segment
	Transform Transform
	Arg       string // argument of pluck, member and not-member
	Preset    string // "default" for *, the name for :name
	Exclude   bool
}

// SelfPath is the path segment addressing the owning object's own value.
const SelfPath = "."

func (f Field) IsPreset() bool { return f.Preset != "" }

// IsAttribute reports whether the last segment addresses a dynamic attribute.
func (f Field) IsAttribute() bool {
	return len(f.Path) > 0 && IsAttributeSegment(f.Path[len(f.Path)-1])
}

func IsAttributeSegment(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

// AttributeUID returns the uid of an attribute segment.
func AttributeUID(seg string) string {
	return strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
}

// Key is the output key of the field (its last name).
func (f Field) Key() string {
	if len(f.Names) == 0 {
		return ""
	}
	return f.Names[len(f.Names)-1]
}

func (f Field) String() string {
	var b strings.Builder
	if f.Exclude {
		b.WriteByte('!')
	}
	switch {
	case f.Preset == "default":
		b.WriteString(joinPath(f.Path, "*"))
	case f.Preset != "":
		b.WriteString(joinPath(f.Path, ":"+f.Preset))
	default:
		b.WriteString(strings.Join(f.Path, "."))
	}
	if f.Transform != "" && f.Transform != TransformAuto {
		b.WriteString("::")
		b.WriteString(string(f.Transform))
		if f.Arg != "" {
			b.WriteString("(" + f.Arg + ")")
		}
	}
	if len(f.Path) > 0 && f.Key() != "" && f.Key() != f.Path[len(f.Path)-1] {
		b.WriteString("~rename(" + f.Key() + ")")
	}
	return b.String()
}

func joinPath(prefix []string, last string) string {
	if len(prefix) == 0 {
		return last
	}
	return strings.Join(prefix, ".") + "." + last
}

type Operator string

const (
	OpEq         Operator = "eq"
	OpLt         Operator = "lt"
	OpLe         Operator = "le"
	OpGt         Operator = "gt"
	OpGe         Operator = "ge"
	OpLike       Operator = "like"
	OpILike      Operator = "ilike"
	OpStartsLike Operator = "startsLike"
	OpStartsWith Operator = "startsWith"
	OpEndsLike   Operator = "endsLike"
	OpEndsWith   Operator = "endsWith"
	OpIn         Operator = "in"
	OpNull       Operator = "null"
	OpEmpty      Operator = "empty"
)

func (op Operator) IsUnary() bool { return op == OpNull || op == OpEmpty }

func (op Operator) IsMultiValue() bool { return op == OpIn }

func (op Operator) IsOrdering() bool {
	return op == OpLt || op == OpLe || op == OpGt || op == OpGe
}

func (op Operator) IsLike() bool {
	switch op {
	case OpLike, OpILike, OpStartsLike, OpStartsWith, OpEndsLike, OpEndsWith:
		return true
	}
	return false
}

// Filter is one property:operator:value triple.
type Filter struct {
	Path     []string
	Operator Operator
	Negated  bool
	Values   []string
	Token    string // operator as written, used in messages
}

func (f Filter) Property() string { return strings.Join(f.Path, ".") }

func (f Filter) String() string {
	return f.Property() + ":" + f.Token + ":[" + strings.Join(f.Values, ", ") + "]"
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type Order struct {
	Path      []string
	Direction Direction
}

func (o Order) Property() string { return strings.Join(o.Path, ".") }

func (o Order) String() string { return o.Property() + ":" + string(o.Direction) }

// Auto selects the default transform of un-expanded collections.
type Auto string

const (
	AutoS  Auto = "S"
	AutoM  Auto = "M"
	AutoL  Auto = "L"
	AutoXL Auto = "XL"
)

// CollectionTransform is the transform used for collections without an explicit one.
func (a Auto) CollectionTransform() Transform {
	switch a {
	case AutoL, AutoXL:
		return TransformIDs
	}
	return TransformSize
}

// Owner addresses /{resource}/{id}/{property}/gist requests.
type Owner struct {
	Schema   string
	ID       string
	Property string
}

// Query is a fully parsed Gist request.
type Query struct {
	Fields       []Field
	Filters      []Filter
	Orders       []Order
	Page         int
	PageSize     int
	Headless     bool
	Describe     bool
	Total        bool
	Locale       string
	AbsoluteURLs bool
	IncludeAll   bool
	AnyFilter    bool
	Auto         Auto
	References   bool
	Translate    bool
	Inverse      bool

	// ObjectID is set for /{resource}/{id}/gist requests.
	ObjectID string
	Owner    *Owner

	// RequestURL is the request path and query, used for pager links.
	RequestURL string
	// Raw expressions as received, reported by describe.
	RawFields string
	RawFilter []string
	RawOrder  string
}

// Offset is the number of rows skipped before the current page.
func (q *Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// FieldStrings renders the fields for reports.
func (q *Query) FieldStrings() []string {
	out := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		out = append(out, f.String())
	}
	return out
}

func (q *Query) FilterStrings() []string {
	out := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		out = append(out, f.String())
	}
	return out
}

func (q *Query) OrderStrings() []string {
	out := make([]string, 0, len(q.Orders))
	for _, o := range q.Orders {
		out = append(out, o.String())
	}
	return out
}
