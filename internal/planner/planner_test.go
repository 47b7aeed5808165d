package planner

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"GistAPI/internal/access"
	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
)

func snapshot(t *testing.T) *model.Snapshot {
	t.Helper()
	s, err := model.Build(model.SchemasFS(""))
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return s
}

func schema(t *testing.T, name string) *model.Model {
	t.Helper()
	m, err := snapshot(t).Describe(name)
	if err != nil {
		t.Fatalf("describe %s: %v", name, err)
	}
	return m
}

func parse(t *testing.T, raw string) *query.Query {
	t.Helper()
	v, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	q, err := query.FromValues(v, query.Defaults{PageSize: 50, MaxPageSize: 1000})
	if err != nil {
		t.Fatalf("query %q: %v", raw, err)
	}
	return q
}

func compile(t *testing.T, raw, schemaName string, p access.Principal, opts Options) (*Plan, Statement) {
	t.Helper()
	plan, err := Build(parse(t, raw), schema(t, schemaName), p, opts)
	if err != nil {
		t.Fatalf("plan %q: %v", raw, err)
	}
	stmt, err := Compile(plan)
	if err != nil {
		t.Fatalf("compile %q: %v", raw, err)
	}
	return plan, stmt
}

func outputNames(plan *Plan) []string {
	var out []string
	for _, o := range plan.Outputs {
		out = append(out, strings.Join(o.Names, "."))
	}
	return out
}

func TestDefaultFieldsOfOrganisationUnit(t *testing.T) {
	plan, stmt := compile(t, "", "organisationUnit", access.System(), Options{})

	want := []string{"id", "code", "name", "displayName", "shortName", "level", "openingDate",
		"parent", "children", "dataSets", "href", "apiEndpoints"}
	if diff := cmp.Diff(want, outputNames(plan)); diff != "" {
		t.Fatalf("outputs (-want +got):\n%s", diff)
	}
	if plan.Single {
		t.Fatalf("default projection must not be single")
	}

	for _, frag := range []string{
		"FROM organisationunit main",
		"LEFT JOIN organisationunit t1 ON t1.organisationunitid = main.parentid",
		"(SELECT COUNT(*) FROM organisationunit e1 WHERE (e1.parentid = main.organisationunitid))",
		"(SELECT COUNT(*) FROM datasetsource j1 JOIN dataset e2 ON e2.datasetid = j1.datasetid WHERE (j1.sourceid = main.organisationunitid))",
		"main.translations AS c",
		"ORDER BY main.organisationunitid ASC LIMIT 50 OFFSET 0",
	} {
		if !strings.Contains(stmt.SQL, frag) {
			t.Fatalf("SQL lacks %q:\n%s", frag, stmt.SQL)
		}
	}

	endpoints := plan.Levels[0].Endpoints
	if len(endpoints) != 3 || endpoints[0].Key != "parent" || endpoints[1].Key != "children" {
		t.Fatalf("unexpected endpoints %+v", endpoints)
	}
}

func TestAutoLargeSelectsIDs(t *testing.T) {
	_, stmt := compile(t, "fields=id,children&auto=L", "organisationUnit", access.System(), Options{})
	if !strings.Contains(stmt.SQL, "COALESCE(json_agg(e1.uid ORDER BY e1.uid), '[]'::json)") {
		t.Fatalf("expected ids aggregate:\n%s", stmt.SQL)
	}
}

func TestReferenceJoinsAreShared(t *testing.T) {
	plan, stmt := compile(t, "fields=parent[name,code],parent.parent.name&order=parent.name", "organisationUnit", access.System(), Options{})
	if len(plan.Joins) != 2 {
		t.Fatalf("expected 2 joins, got %d:\n%s", len(plan.Joins), stmt.SQL)
	}
	if strings.Count(stmt.SQL, "LEFT JOIN organisationunit t1 ") != 1 {
		t.Fatalf("join t1 duplicated:\n%s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "LEFT JOIN organisationunit t2 ON t2.organisationunitid = t1.parentid") {
		t.Fatalf("second level join missing:\n%s", stmt.SQL)
	}
	if !plan.Joins[0].ForOrder || plan.Joins[1].ForOrder {
		t.Fatalf("order flags wrong: %+v %+v", plan.Joins[0], plan.Joins[1])
	}
	want := []string{"parent.name", "parent.code", "parent.parent.name"}
	if diff := cmp.Diff(want, outputNames(plan)); diff != "" {
		t.Fatalf("outputs (-want +got):\n%s", diff)
	}
}

func TestSingleLeafField(t *testing.T) {
	plan, _ := compile(t, "fields=name", "organisationUnit", access.System(), Options{})
	if !plan.Single {
		t.Fatalf("expected single projection")
	}
	plan, _ = compile(t, "fields=parent.name", "organisationUnit", access.System(), Options{})
	if plan.Single {
		t.Fatalf("nested field must not be single")
	}
}

func TestFilterCompilation(t *testing.T) {
	_, stmt := compile(t, "fields=id&filter=name:like:abc&filter=level:gt:2", "organisationUnit", access.System(), Options{})
	want := "SELECT main.uid AS c0 FROM organisationunit main WHERE (main.name LIKE $1 AND main.level > $2) ORDER BY main.organisationunitid ASC LIMIT 50 OFFSET 0"
	if stmt.SQL != want {
		t.Fatalf("SQL:\n got: %s\nwant: %s", stmt.SQL, want)
	}
	if diff := cmp.Diff([]any{"%abc%", int64(2)}, stmt.Args); diff != "" {
		t.Fatalf("args (-want +got):\n%s", diff)
	}
}

func TestSamePropertyJunction(t *testing.T) {
	raw := "fields=id&filter=name:eq:a,name:eq:b,level:eq:1"
	cases := []struct {
		name string
		raw  string
		opts Options
		want string
	}{
		{"or within, and across", raw, Options{}, "WHERE ((main.name = $1 OR main.name = $2) AND main.level = $3)"},
		{"and within", raw, Options{SamePropertyJunction: JunctionAnd}, "WHERE ((main.name = $1 AND main.name = $2) AND main.level = $3)"},
		{"root junction or", raw + "&rootJunction=OR", Options{}, "WHERE ((main.name = $1 OR main.name = $2) OR main.level = $3)"},
	}
	for _, c := range cases {
		_, stmt := compile(t, c.raw, "organisationUnit", access.System(), c.opts)
		if !strings.Contains(stmt.SQL, c.want) {
			t.Fatalf("%s: SQL lacks %q:\n%s", c.name, c.want, stmt.SQL)
		}
	}
}

func TestNegatedFilterIsComplement(t *testing.T) {
	_, stmt := compile(t, "fields=id&filter=code:!eq:a", "organisationUnit", access.System(), Options{})
	if !strings.Contains(stmt.SQL, "WHERE (main.code = $1) IS NOT TRUE") {
		t.Fatalf("unexpected SQL:\n%s", stmt.SQL)
	}
}

func TestLikeVariants(t *testing.T) {
	cases := map[string]string{
		"name:ilike:ab":      "main.name ILIKE $1",
		"name:$like:ab":      "main.name LIKE $1",
		"name:!endsWith:ab":  "(main.name ILIKE $1) IS NOT TRUE",
		"name:like:a*b?":     "main.name LIKE $1",
		"code:empty":         "(main.code IS NULL OR main.code = '')",
		"parent:null":        "main.parentid IS NULL",
		"level:in:[1,2,3]":   "main.level IN ($1,$2,$3)",
		"openingDate:ge:now": "main.openingdate >= $1",
	}
	for filter, want := range cases {
		_, stmt := compile(t, "fields=id&filter="+url.QueryEscape(filter), "organisationUnit", access.System(), Options{})
		if !strings.Contains(stmt.SQL, want) {
			t.Fatalf("%s: SQL lacks %q:\n%s", filter, want, stmt.SQL)
		}
	}
}

func TestLikePattern(t *testing.T) {
	cases := []struct {
		op   query.Operator
		in   string
		want string
	}{
		{query.OpLike, "abc", "%abc%"},
		{query.OpILike, "a*c?", "a%c_"},
		{query.OpStartsWith, "ab", "ab%"},
		{query.OpStartsLike, "ab", "ab%"},
		{query.OpEndsWith, "ab", "%ab"},
		{query.OpEndsLike, "ab", "%ab"},
	}
	for _, c := range cases {
		if got := likePattern(c.op, c.in); got != c.want {
			t.Fatalf("%s %q: got %q, want %q", c.op, c.in, got, c.want)
		}
	}
}

func TestDateValues(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	_, stmt := compile(t, "fields=id&filter=created:lt:now&filter=openingDate:ge:2020-01-31", "organisationUnit", access.System(), Options{})
	want := []any{fixed, time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)}
	if diff := cmp.Diff(want, stmt.Args); diff != "" {
		t.Fatalf("args (-want +got):\n%s", diff)
	}

	_, err := Build(parse(t, "filter=level:eq:high"), schema(t, "organisationUnit"), access.System(), Options{})
	if err == nil || !strings.Contains(err.Error(), "is not a valid number") {
		t.Fatalf("expected number error, got %v", err)
	}
}

func TestCollectionFilters(t *testing.T) {
	cases := map[string]string{
		"children:gt:2":       "(SELECT COUNT(*) FROM organisationunit e1 WHERE (e1.parentid = main.organisationunitid)) > $1",
		"children.name:eq:x":  "EXISTS (SELECT 1 FROM organisationunit e1 WHERE (e1.parentid = main.organisationunitid AND e1.name = $1))",
		"children.name:!eq:x": "NOT EXISTS (SELECT 1 FROM organisationunit e1 WHERE (e1.parentid = main.organisationunitid AND e1.name = $1))",
		"children:empty":      "NOT EXISTS (SELECT 1 FROM organisationunit e1 WHERE (e1.parentid = main.organisationunitid))",
		"dataSets:in:[a,b]":   "EXISTS (SELECT 1 FROM datasetsource j1 JOIN dataset e1 ON e1.datasetid = j1.datasetid WHERE (j1.sourceid = main.organisationunitid AND e1.uid IN ($1,$2)))",
	}
	for filter, want := range cases {
		_, stmt := compile(t, "fields=id&filter="+url.QueryEscape(filter), "organisationUnit", access.System(), Options{})
		if !strings.Contains(stmt.SQL, want) {
			t.Fatalf("%s: SQL lacks %q:\n%s", filter, want, stmt.SQL)
		}
	}
}

func TestReferenceShortSyntaxAndCount(t *testing.T) {
	plan, stmt := compile(t, "fields=id,parent.name&filter=parent:eq:abc&total=true", "organisationUnit", access.System(), Options{})
	if !strings.Contains(stmt.SQL, "t1.uid = $1") {
		t.Fatalf("expected reference id filter:\n%s", stmt.SQL)
	}
	count, err := CompileCount(plan)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	want := "SELECT COUNT(*) FROM organisationunit main LEFT JOIN organisationunit t1 ON t1.organisationunitid = main.parentid WHERE t1.uid = $1"
	if count.SQL != want {
		t.Fatalf("count SQL:\n got: %s\nwant: %s", count.SQL, want)
	}

	plan, _ = compile(t, "fields=id,parent.name&total=true", "organisationUnit", access.System(), Options{})
	count, _ = CompileCount(plan)
	if strings.Contains(count.SQL, "JOIN") {
		t.Fatalf("count must skip field joins: %s", count.SQL)
	}
}

func TestFilterArity(t *testing.T) {
	cases := map[string]string{
		"surname:null:value": "Filter `surname:null:[value]` uses an unary operator and does not need an argument.",
		"surname:eq:[]":      "Filter `surname:eq:[]` uses a binary operator that does need an argument.",
		"surname:gt:[a,b]":   "Filter `surname:gt:[a, b]` can only be used with a single argument.",
	}
	for filter, want := range cases {
		_, err := Build(parse(t, "filter="+url.QueryEscape(filter)), schema(t, "user"), access.System(), Options{})
		if err == nil || err.Error() != want {
			t.Fatalf("%s: got %v, want %q", filter, err, want)
		}
	}
}

func TestFilterKindApplicability(t *testing.T) {
	for _, filter := range []string{"level:like:1", "children:null", "mobile:gt:true"} {
		s := "organisationUnit"
		if strings.HasPrefix(filter, "mobile") {
			s = "dataSet"
		}
		_, err := Build(parse(t, "filter="+filter), schema(t, s), access.System(), Options{})
		if err == nil || !strings.Contains(err.Error(), "cannot be used with property") {
			t.Fatalf("%s: unexpected %v", filter, err)
		}
	}
}

func TestFieldErrors(t *testing.T) {
	user := access.Principal{UID: "u1"}
	cases := []struct {
		raw    string
		p      access.Principal
		want   string
		status int
	}{
		{"fields=:unknown", user, "Field not supported: `:unknown`", http.StatusConflict},
		{"fields=nope", user, "Property `nope` does not exist in `user`.", http.StatusBadRequest},
		{"fields=lastLogin", user, "Property `lastLogin` of `user` is not readable.", http.StatusBadRequest},
		{"fields=password", access.System(), "Property `password` of `user` is not readable.", http.StatusBadRequest},
		{"fields=surname.name", user, "Property `surname` of `user` is not a reference or collection and cannot be traversed.", http.StatusBadRequest},
		{"fields=surname::size", user, "Transformation `size` cannot be applied to property `surname` of `user`.", http.StatusBadRequest},
	}
	for _, c := range cases {
		_, err := Build(parse(t, c.raw), schema(t, "user"), c.p, Options{})
		var verr *apperr.ValidationError
		if !errors.As(err, &verr) || verr.Message != c.want || verr.Status != c.status {
			t.Fatalf("%s: got %v", c.raw, err)
		}
	}
}

func TestPresetExpansionDropsUnreadable(t *testing.T) {
	plan, _ := compile(t, "fields=:all", "user", access.Principal{UID: "u1"}, Options{})
	for _, name := range outputNames(plan) {
		if name == "password" || name == "lastLogin" {
			t.Fatalf("unreadable %s expanded", name)
		}
	}
	plan, _ = compile(t, "fields=*,!surname,-email", "user", access.Principal{UID: "u1"}, Options{})
	for _, name := range outputNames(plan) {
		if name == "surname" || name == "email" {
			t.Fatalf("excluded %s kept", name)
		}
	}
}

func TestEmbeddedReferenceIsInlined(t *testing.T) {
	plan, stmt := compile(t, "fields=id,userCredentials", "user", access.System(), Options{})
	want := []string{"id", "userCredentials.id", "userCredentials.username", "userCredentials.disabled", "userCredentials.userRoles"}
	if diff := cmp.Diff(want, outputNames(plan)); diff != "" {
		t.Fatalf("outputs (-want +got):\n%s", diff)
	}
	if !strings.Contains(stmt.SQL, "LEFT JOIN usercredentials t1 ON t1.usercredentialsid = main.usercredentialsid") {
		t.Fatalf("missing join:\n%s", stmt.SQL)
	}
}

func TestGuestAccess(t *testing.T) {
	plan, stmt := compile(t, "", "dataSet", access.Guest(), Options{})
	want := []string{"id", "code", "name", "displayName", "periodType", "href"}
	if diff := cmp.Diff(want, outputNames(plan)); diff != "" {
		t.Fatalf("guest outputs (-want +got):\n%s", diff)
	}
	if !strings.Contains(stmt.SQL, "main.sharing->>'public' LIKE 'r%'") {
		t.Fatalf("guest row predicate missing:\n%s", stmt.SQL)
	}

	_, err := Build(parse(t, ""), schema(t, "user"), access.Guest(), Options{})
	var aerr *apperr.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	_, err = Build(parse(t, "fields=expiryDays"), schema(t, "dataSet"), access.Guest(), Options{})
	if err == nil || !strings.Contains(err.Error(), "is not readable") {
		t.Fatalf("expected not readable, got %v", err)
	}
}

func TestUserRowPredicateOnJoinsAndElements(t *testing.T) {
	p := access.Principal{UID: "u1", Groups: []string{"g1"}}
	_, stmt := compile(t, "fields=id,dataSet.name", "section", p, Options{})
	if !strings.Contains(stmt.SQL, "LEFT JOIN dataset t1 ON t1.datasetid = main.datasetid AND (t1.sharing->>'owner' = $1") {
		t.Fatalf("join access missing:\n%s", stmt.SQL)
	}
}

func TestOrders(t *testing.T) {
	_, stmt := compile(t, "fields=id&order=displayName:desc,level", "organisationUnit", access.System(), Options{})
	if !strings.Contains(stmt.SQL, "ORDER BY main.name DESC, main.level ASC, main.organisationunitid ASC") {
		t.Fatalf("unexpected order:\n%s", stmt.SQL)
	}
	for _, raw := range []string{"order=children", "order=href", "order=children.name"} {
		_, err := Build(parse(t, raw), schema(t, "organisationUnit"), access.System(), Options{})
		if err == nil || !strings.Contains(err.Error(), "cannot be used as order property.") {
			t.Fatalf("%s: unexpected %v", raw, err)
		}
	}
}

func TestObjectRequest(t *testing.T) {
	q := parse(t, "fields=id,name&total=true&page=3")
	q.ObjectID = "abc"
	plan, err := Build(q, schema(t, "organisationUnit"), access.System(), Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	stmt, _ := Compile(plan)
	if !strings.Contains(stmt.SQL, "WHERE main.uid = $1") || !strings.HasSuffix(stmt.SQL, "LIMIT 1 OFFSET 0") || plan.Count {
		t.Fatalf("unexpected object plan:\n%s", stmt.SQL)
	}
}

func TestCollectionTransforms(t *testing.T) {
	_, stmt := compile(t, "fields=users::member(abc)~rename(isMember),users::not-member(abc)~rename(notMember),users::pluck(surname)~rename(surnames),users::isEmpty~rename(empty)", "userGroup", access.System(), Options{})
	for _, frag := range []string{
		"EXISTS (SELECT 1 FROM usergroupmembers j1 JOIN userinfo e1 ON e1.userinfoid = j1.userid WHERE (j1.usergroupid = main.usergroupid AND e1.uid = $1)) AS c",
		"NOT EXISTS (SELECT 1 FROM usergroupmembers j2 JOIN userinfo e2 ON e2.userinfoid = j2.userid WHERE (j2.usergroupid = main.usergroupid AND e2.uid = $2)) AS c",
		"COALESCE(json_agg(e3.surname ORDER BY e3.userinfoid), '[]'::json)",
	} {
		if !strings.Contains(stmt.SQL, frag) {
			t.Fatalf("SQL lacks %q:\n%s", frag, stmt.SQL)
		}
	}
	_, err := Build(parse(t, "fields=users::pluck(birthday)"), schema(t, "userGroup"), access.System(), Options{})
	if err == nil || !strings.Contains(err.Error(), "Only textual properties can be plucked") {
		t.Fatalf("unexpected %v", err)
	}
}

func TestTails(t *testing.T) {
	plan, stmt := compile(t, "fields=id,children[id,name],dataSets[name]", "organisationUnit", access.System(), Options{})
	if len(plan.Tails) != 2 {
		t.Fatalf("expected 2 tails, got %d", len(plan.Tails))
	}
	if !strings.Contains(stmt.SQL, "main.organisationunitid AS c") {
		t.Fatalf("owner key not selected:\n%s", stmt.SQL)
	}

	children, err := CompileTail(plan.Tails[0], []any{int64(1), int64(2)})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	want := "SELECT main.parentid AS c0, main.uid AS c1, main.name AS c2, main.translations AS c3 FROM organisationunit main WHERE main.parentid IN ($1,$2) ORDER BY main.organisationunitid ASC"
	if children.SQL != want {
		t.Fatalf("tail SQL:\n got: %s\nwant: %s", children.SQL, want)
	}

	dataSets, err := CompileTail(plan.Tails[1], []any{int64(1)})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if !strings.Contains(dataSets.SQL, "FROM dataset main JOIN datasetsource j1 ON j1.datasetid = main.datasetid WHERE j1.sourceid IN ($1)") {
		t.Fatalf("through tail SQL:\n%s", dataSets.SQL)
	}
}

func TestOwnedCollection(t *testing.T) {
	ds := schema(t, "dataSet")
	prop, _ := ds.Properties.Get("organisationUnits")
	q := parse(t, "fields=id&inverse=true")
	q.Owner = &query.Owner{Schema: "dataSet", ID: "ds1", Property: "organisationUnits"}

	plan, err := BuildOwned(q, prop, access.System(), Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	stmt, _ := Compile(plan)
	want := "WHERE (main.organisationunitid IN (SELECT j1.sourceid FROM datasetsource j1 JOIN dataset o1 ON o1.datasetid = j1.datasetid WHERE o1.uid = $1)) IS NOT TRUE"
	if !strings.Contains(stmt.SQL, want) {
		t.Fatalf("SQL lacks %q:\n%s", want, stmt.SQL)
	}
	if diff := cmp.Diff([]any{"ds1"}, stmt.Args); diff != "" {
		t.Fatalf("args (-want +got):\n%s", diff)
	}
}

func TestCompileExists(t *testing.T) {
	stmt, err := CompileExists(schema(t, "dataSet"), "ds1", access.Guest())
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	want := "SELECT 1 FROM dataset main WHERE (main.uid = $1 AND main.sharing->>'public' LIKE 'r%') LIMIT 1"
	if stmt.SQL != want {
		t.Fatalf("SQL:\n got: %s\nwant: %s", stmt.SQL, want)
	}
}
