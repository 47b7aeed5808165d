// Package planner turns a parsed query into an immutable, typed plan and
// compiles that plan to SQL.
package planner

import (
	sq "github.com/Masterminds/squirrel"

	"GistAPI/internal/access"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
)

// RootAlias is the SQL alias of the queried schema's table.
const RootAlias = "main"

// Plan is built fresh for every request and never mutated after Build returns.
type Plan struct {
	Root      *model.Model
	Alias     string
	Principal access.Principal
	Query     *query.Query

	Columns []Column
	Outputs []*Output
	Levels  []*Level // Levels[0] is the root object
	Joins   []*Join
	Where   Predicate
	Orders  []OrderBy
	Limit   int
	Offset  int
	Count   bool
	Tails   []*Tail

	// Single is set when exactly one top-level leaf was requested; items are bare values.
	Single bool

	// tail plans only: the owner key expression and the join table clause
	ownerKey string
	through  string

	Summary Summary
}

// Summary is what describe reports about a plan.
type Summary struct {
	Fields  []string
	Filters []string
	Orders  []string
	Notes   []string
}

// Column is one entry of the select list. The variants are ScalarColumn,
// ReferenceColumn, CollectionColumn, AttributeColumn and SupportColumn.
type Column interface {
	column()
}

// ScalarColumn selects a persisted property of the object at Alias.
type ScalarColumn struct {
	Alias string
	Prop  *model.Property
}

// ReferenceColumn selects the uid of a joined reference target.
type ReferenceColumn struct {
	Alias string // alias of the joined target
	Prop  *model.Property
}

// CollectionColumn selects a transform of a collection as a correlated subquery.
type CollectionColumn struct {
	Sub       *Subquery
	Prop      *model.Property
	Transform query.Transform
	Plucked   *model.Property // pluck only
	Arg       string          // member and not-member
}

// AttributeColumn selects one dynamic attribute value.
type AttributeColumn struct {
	Alias  string
	Column string
	UID    string
}

// SupportRole says why a support column is selected.
type SupportRole string

const (
	SupportPK           SupportRole = "pk"
	SupportUID          SupportRole = "uid"
	SupportTranslations SupportRole = "translations"
	SupportSharing      SupportRole = "sharing"
	SupportOwnerKey     SupportRole = "ownerKey"
)

// SupportColumn is selected for shaping only and never emitted as a field.
type SupportColumn struct {
	Alias  string
	Column string
	Role   SupportRole
}

func (ScalarColumn) column()     {}
func (ReferenceColumn) column()  {}
func (CollectionColumn) column() {}
func (AttributeColumn) column()  {}
func (SupportColumn) column()    {}

// Join is a LEFT JOIN of a reference target, shared by every path with the same prefix.
type Join struct {
	Path      string // dotted reference path from the scope owner, e.g. "parent.parent"
	Schema    *model.Model
	Alias     string
	On        string
	Access    sq.Sqlizer // row predicate of the target, part of the ON clause
	ForFilter bool
	ForOrder  bool
}

// Subquery is the element scope of a collection: a correlated select over the
// target table, optionally through a join table.
type Subquery struct {
	Prop         *model.Property
	Schema       *model.Model
	Alias        string
	ThroughAlias string
	Correlation  string
	Access       sq.Sqlizer
	Joins        []*Join
	Where        Predicate
}

// OutputKind says how the shaper turns a column into a value.
type OutputKind int

const (
	OutValue OutputKind = iota
	OutReference
	OutCollection
	OutAttribute
	OutHref
	OutAccess
	OutEndpoints
	OutDisplayName
	OutTail
)

// Output is one leaf of the projection tree.
type Output struct {
	Names     []string // output keys from the root object to the leaf
	Kind      OutputKind
	Column    int // index into Plan.Columns, -1 when the leaf has none
	Levels    []*Level
	Prop      *model.Property
	Transform query.Transform
	Tail      *Tail
}

// Level returns the object the leaf belongs to.
func (o *Output) Level() *Level { return o.Levels[len(o.Levels)-1] }

// Key is the output key of the leaf inside its object.
func (o *Output) Key() string { return o.Names[len(o.Names)-1] }

// Level is one object of the projection: the root or a joined reference.
type Level struct {
	Schema       *model.Model
	Alias        string
	Names        []string // output path of the object, nil for the root
	Path         string
	PK           int
	UID          int
	Translations int
	Sharing      int
	Endpoints    []*Endpoint
	// EndpointsOutput is set when apiEndpoints was requested explicitly.
	EndpointsOutput bool
}

// Endpoint is an un-expanded reference or collection listed in apiEndpoints.
type Endpoint struct {
	Key  string
	Prop *model.Property
	// Column holds the reference uid or the collection transform value, -1 if none.
	Column int
	// Transform of the collection column, used to skip empty collections.
	Transform query.Transform
	Explicit  bool
}

// Tail is a collection projected with nested fields. It is fetched by a
// follow-up query keyed by the owner's primary key.
type Tail struct {
	Names     []string
	Levels    []*Level
	Prop      *model.Property
	KeyColumn int // owner pk column in the parent plan
	Plan      *Plan
}

// OrderBy is one compiled order term.
type OrderBy struct {
	Expr      string
	Direction query.Direction
}

// Predicate is a node of the filter tree. The variants are CompareFilter,
// EqFilter, LikeFilter, InFilter, NullFilter, EmptyFilter, ExistsFilter,
// SizeFilter, NotFilter, AndFilter, OrFilter and RawFilter.
type Predicate interface {
	predicate()
}

type CompareFilter struct {
	Expr  string
	Op    query.Operator // lt, le, gt or ge
	Value any
}

type EqFilter struct {
	Expr  string
	Value any
	Array bool // Expr is an array column and Value must be an element
}

type LikeFilter struct {
	Expr            string
	Pattern         string
	CaseInsensitive bool
}

type InFilter struct {
	Expr   string
	Values []any
}

type NullFilter struct {
	Expr string
}

// EmptyFilter matches null or empty text and arrays, or collections without elements.
type EmptyFilter struct {
	Expr  string
	Array bool
	Sub   *Subquery
}

// ExistsFilter holds when some element of Sub matches Sub.Where.
type ExistsFilter struct {
	Sub *Subquery
}

// SizeFilter compares the number of elements of Sub.
type SizeFilter struct {
	Sub  *Subquery
	Op   query.Operator
	Size int
}

// NotFilter is the complement of Inner over the visible rows.
type NotFilter struct {
	Inner Predicate
}

type AndFilter struct {
	Items []Predicate
}

type OrFilter struct {
	Items []Predicate
}

// RawFilter embeds an already built condition such as an access predicate.
type RawFilter struct {
	Cond sq.Sqlizer
}

func (CompareFilter) predicate() {}
func (EqFilter) predicate()      {}
func (LikeFilter) predicate()    {}
func (InFilter) predicate()      {}
func (NullFilter) predicate()    {}
func (EmptyFilter) predicate()   {}
func (ExistsFilter) predicate()  {}
func (SizeFilter) predicate()    {}
func (NotFilter) predicate()     {}
func (AndFilter) predicate()     {}
func (OrFilter) predicate()      {}
func (RawFilter) predicate()     {}
