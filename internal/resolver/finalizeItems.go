package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	orderedmap "github.com/pb33f/ordered-map/v2"

	"GistAPI/internal/access"
	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/planner"
	"GistAPI/internal/query"
)

// object is a JSON object that keeps the order of the requested fields.
// Links keep a literal & in the output.
type object = orderedmap.OrderedMap[string, any]

func newObject() *object {
	return orderedmap.New[string, any](orderedmap.WithDisableHTMLEscape[string, any]())
}

const timeLayout = "2006-01-02T15:04:05.000"

// shaper turns fetched rows into items.
type shaper struct {
	p          access.Principal
	q          *query.Query
	locale     string
	candidates []string
	base       string // scheme://host when absolute links are requested
	prefix     string
}

func (r *Resolver) newShaper(req Request) *shaper {
	locale := firstNonEmpty(req.Query.Locale, req.Principal.Locale, r.opts.Locale)
	return &shaper{
		p:          req.Principal,
		q:          req.Query,
		locale:     locale,
		candidates: localeCandidates(locale),
		base:       r.linkBase(req),
		prefix:     strings.TrimRight(r.opts.Prefix, "/"),
	}
}

func (r *Resolver) linkBase(req Request) string {
	if !req.Query.AbsoluteURLs {
		return ""
	}
	return strings.TrimRight(firstNonEmpty(r.opts.BaseURL, req.Origin), "/")
}

func (s *shaper) items(rs *resultSet) ([]any, error) {
	return s.rows(rs, rs.rows)
}

func (s *shaper) rows(rs *resultSet, rows [][]any) ([]any, error) {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		item, err := s.item(rs, row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// rowState caches the decoded translations of one row by column.
type rowState struct {
	translations map[int][]translation
}

// item shapes one row: a bare value for single-field plans, an object otherwise.
func (s *shaper) item(rs *resultSet, row []any) (any, error) {
	st := &rowState{}
	if rs.plan.Single {
		v, _, err := s.value(rs, row, rs.plan.Outputs[0], st)
		return v, err
	}
	root := newObject()
	for _, o := range rs.plan.Outputs {
		obj, ok := container(root, row, o.Levels)
		if !ok {
			continue
		}
		v, emit, err := s.value(rs, row, o, st)
		if err != nil {
			return nil, err
		}
		if emit {
			obj.Set(o.Key(), v)
		}
	}
	return root, nil
}

// container returns the object of the last level, creating the intermediate
// objects. A reference whose key is null is emitted as null and its fields skipped.
func container(root *object, row []any, levels []*planner.Level) (*object, bool) {
	obj := root
	for _, l := range levels[1:] {
		key := l.Names[len(l.Names)-1]
		if cur, ok := obj.Get(key); ok {
			next, isObj := cur.(*object)
			if !isObj {
				return nil, false
			}
			obj = next
			continue
		}
		if l.PK >= 0 && row[l.PK] == nil {
			obj.Set(key, nil)
			return nil, false
		}
		next := newObject()
		obj.Set(key, next)
		obj = next
	}
	return obj, true
}

func (s *shaper) value(rs *resultSet, row []any, o *planner.Output, st *rowState) (any, bool, error) {
	l := o.Level()
	switch o.Kind {
	case planner.OutValue:
		v, err := s.property(row, o.Column, o.Prop, l, st)
		return v, true, err

	case planner.OutDisplayName:
		v, err := s.property(row, o.Column, o.Prop.SourceProperty(), l, st)
		return v, true, err

	case planner.OutReference:
		return text(row[o.Column]), true, nil

	case planner.OutAttribute:
		return text(row[o.Column]), true, nil

	case planner.OutCollection:
		v, err := collectionValue(o.Transform, row[o.Column])
		return v, true, err

	case planner.OutHref:
		if o.Column < 0 || row[o.Column] == nil {
			return nil, false, nil
		}
		return s.link(l.Schema.Endpoint, textString(row[o.Column]), "gist"), true, nil

	case planner.OutAccess:
		var raw any
		if o.Column >= 0 {
			raw = row[o.Column]
		}
		sharing, err := access.ParseSharing(raw)
		if err != nil {
			return nil, false, apperr.ErrExecution(err, "Cannot read sharing of `%s`", l.Schema.Name)
		}
		if !l.Schema.Shareable() {
			sharing = nil
		}
		return access.Evaluate(s.p, sharing), true, nil

	case planner.OutEndpoints:
		eps, err := s.endpoints(row, l)
		if err != nil || eps.Len() == 0 {
			return nil, false, err
		}
		return eps, true, nil

	case planner.OutTail:
		child := rs.tails[o.Tail]
		if child == nil || row[o.Column] == nil {
			return []any{}, true, nil
		}
		items, err := s.rows(child, child.owners[keyOf(row[o.Column])])
		return items, true, err
	}
	return nil, false, fmt.Errorf("shape: unknown output kind %d", o.Kind)
}

// property renders a persisted value: translated, localized or as stored.
func (s *shaper) property(row []any, col int, prop *model.Property, l *planner.Level, st *rowState) (any, error) {
	if prop == nil {
		return nil, fmt.Errorf("shape: output without property")
	}
	if prop.Translatable && s.q.Translate && l.Translations >= 0 {
		ts, err := st.decoded(row, l.Translations)
		if err != nil {
			return nil, err
		}
		if v, ok := s.translate(ts, prop.TranslationProperty()); ok {
			return v, nil
		}
	}
	v, err := scalar(row[col], prop.Type)
	if err != nil {
		return nil, apperr.ErrExecution(err, "Cannot read `%s` of `%s`", prop.Name, l.Schema.Name)
	}
	if str, ok := v.(string); ok && prop.Localize && s.q.Translate {
		return model.LocalizeValue(s.locale, l.Schema.Name, prop.Name, str), nil
	}
	return v, nil
}

// endpoints lists the links of the un-expanded references and collections of l.
func (s *shaper) endpoints(row []any, l *planner.Level) (*object, error) {
	eps := newObject()
	for _, ep := range l.Endpoints {
		if ep.Prop.IsReference() {
			if ep.Column < 0 || row[ep.Column] == nil {
				continue
			}
			eps.Set(ep.Key, s.link(ep.Prop.Target().Endpoint, textString(row[ep.Column]), "gist"))
			continue
		}
		if l.UID < 0 || row[l.UID] == nil {
			continue
		}
		if !s.q.IncludeAll && !ep.Explicit && ep.Column >= 0 {
			empty, err := isEmptyCollection(ep.Transform, row[ep.Column])
			if err != nil {
				return nil, err
			}
			if empty {
				continue
			}
		}
		eps.Set(ep.Key, s.link(l.Schema.Endpoint, textString(row[l.UID]), ep.Prop.Name, "gist"))
	}
	return eps, nil
}

func (s *shaper) link(endpoint string, parts ...string) string {
	return s.base + s.prefix + endpoint + "/" + strings.Join(parts, "/")
}

func collectionValue(t query.Transform, v any) (any, error) {
	switch t {
	case query.TransformSize:
		n, _ := toInt(v)
		return n, nil
	case query.TransformIsEmpty, query.TransformIsNotEmpty, query.TransformMember, query.TransformNotMember:
		return toBool(v), nil
	case query.TransformIDs, query.TransformPluck:
		return jsonArray(v)
	case query.TransformIDObjects:
		ids, err := jsonArray(v)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(ids))
		for i, id := range ids {
			obj := newObject()
			obj.Set("id", id)
			out[i] = obj
		}
		return out, nil
	}
	return nil, nil
}

func isEmptyCollection(t query.Transform, v any) (bool, error) {
	switch t {
	case query.TransformSize:
		n, _ := toInt(v)
		return n == 0, nil
	case query.TransformIsEmpty:
		return toBool(v), nil
	case query.TransformIsNotEmpty:
		return !toBool(v), nil
	case query.TransformIDs, query.TransformIDObjects, query.TransformPluck:
		items, err := jsonArray(v)
		return len(items) == 0, err
	}
	return false, nil
}

// scalar converts a driver value of a property of kind.
func scalar(v any, kind string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if kind == model.KindJSON || kind == model.KindArray {
			return decodeJSON(x)
		}
		return string(x), nil
	case string:
		if kind == model.KindJSON || kind == model.KindArray {
			return decodeJSON([]byte(x))
		}
		return x, nil
	case time.Time:
		return x.Format(timeLayout), nil
	}
	return v, nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func jsonArray(v any) ([]any, error) {
	var data []byte
	switch x := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return x, nil
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return nil, apperr.ErrExecution(nil, "Unexpected collection value %T", v)
	}
	decoded, err := decodeJSON(data)
	if err != nil {
		return nil, apperr.ErrExecution(err, "Cannot read collection value")
	}
	items, ok := decoded.([]any)
	if !ok {
		return []any{}, nil
	}
	return items, nil
}

func text(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// textString is text for path segments: NULL becomes "".
func textString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case int32:
		return int(x), true
	case int:
		return x, true
	case float64:
		return int(x), true
	case []byte:
		n, err := strconv.Atoi(string(x))
		return n, err == nil
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	}
	return 0, false
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case []byte:
		return string(x) == "t" || string(x) == "true"
	case string:
		return x == "t" || x == "true"
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
