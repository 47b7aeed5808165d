package planner

import (
	"fmt"
	"slices"
	"strings"

	"GistAPI/internal/access"
	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
)

// maxEmbedDepth limits how deep references without own endpoint are inlined.
const maxEmbedDepth = 2

// expandFields replaces presets by their properties, applies exclusions and
// drops duplicate output keys.
func (b *builder) expandFields(root *model.Model, fields []query.Field) ([]query.Field, error) {
	if len(fields) == 0 {
		fields = []query.Field{{Preset: "default"}}
	}

	var expanded []query.Field
	var excluded [][]string
	for _, f := range fields {
		switch {
		case f.Exclude:
			excluded = append(excluded, f.Path)
		case f.IsPreset():
			more, err := b.expandPreset(root, f)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, more...)
		default:
			expanded = append(expanded, f)
		}
	}

	seen := make(map[string]bool, len(expanded))
	out := make([]query.Field, 0, len(expanded))
	for _, f := range expanded {
		if isExcluded(f, excluded) {
			continue
		}
		key := strings.Join(f.Names, ".")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out, nil
}

func isExcluded(f query.Field, excluded [][]string) bool {
	for _, ex := range excluded {
		if len(ex) <= len(f.Path) && slices.Equal(ex, f.Path[:len(ex)]) {
			return true
		}
	}
	return false
}

// expandPreset lists the readable properties of a preset. Unreadable entries
// are dropped silently; for guests this leaves the public part only.
func (b *builder) expandPreset(root *model.Model, f query.Field) ([]query.Field, error) {
	target := root
	if len(f.Path) > 0 {
		chain, err := root.Resolve(f.Path)
		if err != nil {
			return nil, err
		}
		last := chain[len(chain)-1]
		if !last.IsReference() && !last.IsCollection() {
			return nil, apperr.ErrValidation("Preset `:%s` cannot be applied to property `%s`.", f.Preset, strings.Join(f.Path, "."))
		}
		target = last.Target()
	}
	names, ok := target.Preset(f.Preset)
	if !ok {
		return nil, apperr.ErrConflict("Field not supported: `:%s`", f.Preset)
	}

	out := make([]query.Field, 0, len(names))
	for _, name := range names {
		path := strings.Split(name, ".")
		if !b.readablePath(target, path) {
			continue
		}
		out = append(out, query.Field{
			Path:  append(slices.Clone(f.Path), path...),
			Names: append(slices.Clone(f.Names), path...),
		})
	}
	return out, nil
}

func (b *builder) readablePath(m *model.Model, path []string) bool {
	for _, seg := range path {
		if m == nil {
			return false
		}
		prop, ok := m.Properties.Get(seg)
		if !ok || !access.IsReadable(b.p, m, prop) {
			return false
		}
		m = prop.Target()
	}
	return true
}

// projection collects the columns and outputs of one plan.
type projection struct {
	b      *builder
	plan   *Plan
	sc     *scope
	levels map[string]*Level
	chains map[*Level][]*Level
	tails  map[string]*tailGroup
	groups []*tailGroup
}

type tailGroup struct {
	tail   *Tail
	fields []query.Field
}

func (b *builder) planFields(plan *Plan, sc *scope, fields []query.Field, top bool) error {
	pr := &projection{
		b:      b,
		plan:   plan,
		sc:     sc,
		levels: make(map[string]*Level),
		chains: make(map[*Level][]*Level),
		tails:  make(map[string]*tailGroup),
	}
	pr.newLevel(nil, nil, sc.schema, sc.alias, nil)

	for _, f := range fields {
		if err := pr.field(f, 0); err != nil {
			return err
		}
	}

	if top && len(fields) == 1 && len(fields[0].Names) == 1 && len(plan.Outputs) == 1 {
		switch plan.Outputs[0].Kind {
		case OutTail, OutEndpoints:
		default:
			plan.Single = true
		}
	}

	if !plan.Single && b.q.References {
		for _, l := range plan.Levels {
			if len(l.Endpoints) == 0 || l.EndpointsOutput {
				continue
			}
			plan.Outputs = append(plan.Outputs, &Output{
				Names:  append(slices.Clone(l.Names), "apiEndpoints"),
				Kind:   OutEndpoints,
				Column: -1,
				Levels: pr.chains[l],
			})
		}
	}

	for _, g := range pr.groups {
		if err := b.buildTail(g.tail, g.fields); err != nil {
			return err
		}
	}
	return nil
}

func (pr *projection) addColumn(c Column) int {
	pr.plan.Columns = append(pr.plan.Columns, c)
	return len(pr.plan.Columns) - 1
}

// support returns the column of a support value of l, selecting it once.
func (pr *projection) support(l *Level, role SupportRole) int {
	var slot *int
	var column string
	switch role {
	case SupportPK:
		slot, column = &l.PK, l.Schema.PrimaryKey()
	case SupportUID:
		slot, column = &l.UID, l.Schema.UIDColumn()
	case SupportTranslations:
		slot, column = &l.Translations, l.Schema.Translations
	case SupportSharing:
		slot, column = &l.Sharing, l.Schema.Sharing
	default:
		return -1
	}
	if column == "" {
		return -1
	}
	if *slot < 0 {
		*slot = pr.addColumn(SupportColumn{Alias: l.Alias, Column: column, Role: role})
	}
	return *slot
}

func (pr *projection) newLevel(names, path []string, m *model.Model, alias string, parent []*Level) *Level {
	l := &Level{
		Schema:       m,
		Alias:        alias,
		Names:        slices.Clone(names),
		Path:         strings.Join(path, "."),
		PK:           -1,
		UID:          -1,
		Translations: -1,
		Sharing:      -1,
	}
	pr.levels[strings.Join(names, ".")] = l
	pr.chains[l] = append(slices.Clone(parent), l)
	pr.plan.Levels = append(pr.plan.Levels, l)
	return l
}

// level returns the object reached through a reference, keyed by its output path.
func (pr *projection) level(names, path []string, st step, parent []*Level) *Level {
	if l, ok := pr.levels[strings.Join(names, ".")]; ok {
		return l
	}
	l := pr.newLevel(names, path, st.schema, st.alias, parent)
	// pk отличает отсутствующую ссылку (null) от пустого объекта
	pr.support(l, SupportPK)
	return l
}

func (pr *projection) field(f query.Field, depth int) error {
	path, names := f.Path, f.Names
	if n := len(path); n > 0 && path[n-1] == query.SelfPath {
		path, names = path[:n-1], names[:n-1]
	}
	if len(path) == 0 {
		return apperr.ErrValidation("Field `.` can only be used on a property endpoint.")
	}

	steps, collAt, err := pr.sc.walk(path, walkField)
	if err != nil {
		return err
	}

	levels := pr.chains[pr.plan.Levels[0]]
	for i := 0; i < len(steps)-1; i++ {
		l := pr.level(names[:i+1], path[:i+1], steps[i+1], levels)
		levels = pr.chains[l]
	}

	if collAt >= 0 {
		return pr.tail(f, path, names, steps, levels, collAt)
	}

	last := steps[len(steps)-1]
	l := levels[len(levels)-1]
	out := &Output{Names: slices.Clone(names), Column: -1, Levels: levels, Prop: last.prop}

	if last.prop == nil {
		out.Kind = OutAttribute
		out.Column = pr.addColumn(AttributeColumn{Alias: l.Alias, Column: l.Schema.Attributes, UID: query.AttributeUID(path[len(path)-1])})
		pr.plan.Outputs = append(pr.plan.Outputs, out)
		return nil
	}

	prop := last.prop
	if !prop.IsCollection() {
		switch f.Transform {
		case "", query.TransformAuto, query.TransformNone:
		default:
			return apperr.ErrValidation("Transformation `%s` cannot be applied to property `%s` of `%s`.", f.Transform, prop.Name, l.Schema.Name)
		}
	}

	switch {
	case prop.IsSynthetic():
		return pr.synthetic(out, l, prop)

	case prop.IsReference():
		if !prop.IsIdentifiableReference() && depth < maxEmbedDepth {
			return pr.embed(prop, path, names, depth)
		}
		j := pr.sc.join(path, last.alias, prop)
		out.Kind = OutReference
		out.Column = pr.addColumn(ReferenceColumn{Alias: j.Alias, Prop: prop})
		if prop.IsIdentifiableReference() {
			l.Endpoints = append(l.Endpoints, &Endpoint{Key: out.Key(), Prop: prop, Column: out.Column})
		}

	case prop.IsCollection():
		return pr.collection(out, l, last, f)

	default:
		out.Kind = OutValue
		out.Column = pr.addColumn(ScalarColumn{Alias: last.alias, Prop: prop})
		if prop.Translatable && pr.b.q.Translate {
			pr.support(l, SupportTranslations)
		}
	}
	pr.plan.Outputs = append(pr.plan.Outputs, out)
	return nil
}

// embed inlines a reference without own endpoint using the target's default preset.
func (pr *projection) embed(prop *model.Property, path, names []string, depth int) error {
	target := prop.Target()
	preset, _ := target.Preset("default")
	for _, name := range preset {
		sub := strings.Split(name, ".")
		if !pr.b.readablePath(target, sub) {
			continue
		}
		f := query.Field{
			Path:  append(slices.Clone(path), sub...),
			Names: append(slices.Clone(names), sub...),
		}
		if err := pr.field(f, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (pr *projection) synthetic(out *Output, l *Level, prop *model.Property) error {
	switch prop.Synthetic {
	case model.SyntheticHref:
		out.Kind = OutHref
		out.Column = pr.support(l, SupportUID)
	case model.SyntheticAccess:
		out.Kind = OutAccess
		out.Column = pr.support(l, SupportSharing)
	case model.SyntheticAPIEndpoints:
		if !pr.b.q.References {
			return nil
		}
		out.Kind = OutEndpoints
		l.EndpointsOutput = true
	case model.SyntheticDisplayName:
		src := prop.SourceProperty()
		if src == nil {
			return fmt.Errorf("display property %s.%s has no source", l.Schema.Name, prop.Name)
		}
		out.Kind = OutDisplayName
		out.Column = pr.addColumn(ScalarColumn{Alias: l.Alias, Prop: src})
		if prop.Translatable && pr.b.q.Translate {
			pr.support(l, SupportTranslations)
		}
	default:
		return apperr.ErrValidation("Property `%s` of `%s` cannot be used as field.", prop.Name, l.Schema.Name)
	}
	pr.plan.Outputs = append(pr.plan.Outputs, out)
	return nil
}

func (pr *projection) collection(out *Output, l *Level, last step, f query.Field) error {
	prop := last.prop
	transform := f.Transform
	if transform == "" || transform == query.TransformAuto {
		transform = pr.b.q.Auto.CollectionTransform()
	}
	out.Kind = OutCollection
	out.Transform = transform

	ep := &Endpoint{Key: out.Key(), Prop: prop, Column: -1, Transform: transform, Explicit: f.Transform == query.TransformSize}
	if l.Schema.UIDColumn() != "" && l.Schema.Endpoint != "" {
		pr.support(l, SupportUID)
		l.Endpoints = append(l.Endpoints, ep)
	}
	if transform == query.TransformNone {
		return nil
	}

	sub, _ := pr.sc.elements(last.alias, prop)
	col := CollectionColumn{Sub: sub, Prop: prop, Transform: transform, Arg: f.Arg}
	if transform == query.TransformPluck {
		name := f.Arg
		if name == "" {
			name = "id"
		}
		plucked, ok := sub.Schema.Properties.Get(name)
		if !ok {
			return apperr.ErrValidation("Property `%s` does not exist in `%s`.", name, sub.Schema.Name)
		}
		if !access.IsReadable(pr.b.p, sub.Schema, plucked) {
			return apperr.ErrValidation("Property `%s` of `%s` is not readable.", name, sub.Schema.Name)
		}
		if !plucked.IsPersisted() || !plucked.IsText() {
			return apperr.ErrValidation("Only textual properties can be plucked, but `%s` is a `%s`.", name, plucked.Type)
		}
		col.Plucked = plucked
	}
	out.Column = pr.addColumn(col)
	ep.Column = out.Column
	pr.plan.Outputs = append(pr.plan.Outputs, out)
	return nil
}

// tail groups fields below a collection segment into one nested plan.
func (pr *projection) tail(f query.Field, path, names []string, steps []step, levels []*Level, at int) error {
	key := strings.Join(names[:at+1], ".")
	g, ok := pr.tails[key]
	if !ok {
		l := levels[len(levels)-1]
		prop := steps[at].prop
		keyCol := pr.support(l, SupportPK)
		t := &Tail{
			Names:     slices.Clone(names[:at+1]),
			Levels:    levels,
			Prop:      prop,
			KeyColumn: keyCol,
		}
		g = &tailGroup{tail: t}
		pr.tails[key] = g
		pr.groups = append(pr.groups, g)
		pr.plan.Tails = append(pr.plan.Tails, t)
		pr.plan.Outputs = append(pr.plan.Outputs, &Output{
			Names:  t.Names,
			Kind:   OutTail,
			Column: keyCol,
			Levels: levels,
			Prop:   prop,
			Tail:   t,
		})
	}
	g.fields = append(g.fields, query.Field{
		Path:      slices.Clone(path[at+1:]),
		Names:     slices.Clone(names[at+1:]),
		Transform: f.Transform,
		Arg:       f.Arg,
	})
	return nil
}

// buildTail plans the elements of a nested collection. The first column of the
// tail plan is the owner key the rows are grouped by.
func (b *builder) buildTail(t *Tail, fields []query.Field) error {
	target := t.Prop.Target()
	if err := access.CanReadSchema(b.p, target); err != nil {
		return err
	}
	child := &Plan{Root: target, Alias: RootAlias, Principal: b.p, Query: b.q}
	if t.Prop.IsThrough() {
		j := b.nextAlias("j")
		child.through = fmt.Sprintf("%s %s ON %s.%s = %s.%s", t.Prop.Through, j, j, t.Prop.TargetFK, RootAlias, target.PrimaryKey())
		child.ownerKey = j + "." + t.Prop.OwnerFK
		child.Columns = append(child.Columns, SupportColumn{Alias: j, Column: t.Prop.OwnerFK, Role: SupportOwnerKey})
	} else {
		child.ownerKey = RootAlias + "." + t.Prop.FK
		child.Columns = append(child.Columns, SupportColumn{Alias: RootAlias, Column: t.Prop.FK, Role: SupportOwnerKey})
	}

	sc := newScope(b, target, RootAlias)
	if err := b.planFields(child, sc, fields, false); err != nil {
		return err
	}
	if pred := access.RowPredicate(b.p, target, RootAlias); pred != nil {
		child.Where = RawFilter{Cond: pred}
	}
	child.Orders = []OrderBy{{Expr: RootAlias + "." + target.PrimaryKey(), Direction: query.Asc}}
	child.Joins = sc.joins
	t.Plan = child
	return nil
}
