package resolver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"GistAPI/internal/access"
	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
	"GistAPI/internal/planner"
	"GistAPI/internal/query"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func newTestResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return New(NewExecutor(db), Options{Prefix: "/api"}), mock
}

func testSchema(t *testing.T, name string) *model.Model {
	t.Helper()
	s, err := model.Build(model.SchemasFS(""))
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	m, err := s.Describe(name)
	if err != nil {
		t.Fatalf("describe %s: %v", name, err)
	}
	return m
}

func newRequest(t *testing.T, schema, raw string, p access.Principal) Request {
	t.Helper()
	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	q, err := query.FromValues(values, query.Defaults{PageSize: 50, MaxPageSize: 1000})
	if err != nil {
		t.Fatalf("query %q: %v", raw, err)
	}
	return Request{Schema: testSchema(t, schema), Query: q, Principal: p}
}

// toJSON encodes v the way responses are written.
func toJSON(t *testing.T, v any) string {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func TestRunShapesFirstPage(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "organisationUnit", "fields=id,name,parent,children&total=true&pageSize=2&locale=fr", access.System())

	rows := sqlmock.NewRows([]string{"c0", "c1", "c2", "c3", "c4", "c5"}).
		AddRow("ou1", "Norway", []byte(`[{"locale":"fr","property":"name","value":"Norvège"}]`), nil, "ou1", int64(3))
	mock.ExpectQuery("SELECT .+ FROM organisationunit main LEFT JOIN organisationunit t1").WillReturnRows(rows)

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `{"pager":{"page":1,"pageSize":2,"total":1,"pageCount":1},"organisationUnits":[` +
		`{"id":"ou1","name":"Norvège","parent":null,"children":3,` +
		`"apiEndpoints":{"children":"/api/organisationUnits/ou1/children/gist"}}]}`
	if diff := cmp.Diff(want, toJSON(t, got)); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}

func TestRunCountsFullFirstPage(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "organisationUnit", "fields=id&total=true&pageSize=1", access.System())
	req.Query.RequestURL = "/api/organisationUnits/gist?fields=id&pageSize=1&total=true"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT main.uid AS c0 FROM organisationunit main")).
		WillReturnRows(sqlmock.NewRows([]string{"c0"}).AddRow("ou1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM organisationunit main")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `{"pager":{"page":1,"pageSize":1,"total":5,"pageCount":5,` +
		`"nextPage":"/api/organisationUnits/gist?fields=id&page=2&pageSize=1&total=true"},` +
		`"organisationUnits":["ou1"]}`
	if diff := cmp.Diff(want, toJSON(t, got)); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}

func TestRunLaterPageCountsConcurrently(t *testing.T) {
	r, mock := newTestResolver(t)
	mock.MatchExpectationsInOrder(false)
	req := newRequest(t, "organisationUnit", "fields=id&total=true&pageSize=1&page=2", access.System())
	req.Query.RequestURL = "/api/organisationUnits/gist?fields=id&page=2&pageSize=1&total=true"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT main.uid AS c0 FROM organisationunit main")).
		WillReturnRows(sqlmock.NewRows([]string{"c0"}).AddRow("ou2"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM organisationunit main")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	env := got.(*object)
	raw, _ := env.Get("pager")
	pager := raw.(Pager)
	if *pager.Total != 3 || *pager.PageCount != 3 {
		t.Fatalf("unexpected pager %+v", pager)
	}
	if pager.PrevPage != "/api/organisationUnits/gist?fields=id&page=1&pageSize=1&total=true" ||
		pager.NextPage != "/api/organisationUnits/gist?fields=id&page=3&pageSize=1&total=true" {
		t.Fatalf("unexpected links %q %q", pager.PrevPage, pager.NextPage)
	}
}

func TestRunFetchesTails(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "organisationUnit", "fields=id,children[id,name]&translate=false&headless=true", access.System())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT main.uid AS c0, main.organisationunitid AS c1 FROM organisationunit main")).
		WillReturnRows(sqlmock.NewRows([]string{"c0", "c1"}).
			AddRow("ou1", int64(1)).
			AddRow("ou2", int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT main.parentid AS c0, main.uid AS c1, main.name AS c2 FROM organisationunit main WHERE main.parentid IN ($1,$2)")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"c0", "c1", "c2"}).
			AddRow(int64(1), "c1", "Child 1").
			AddRow(int64(1), "c2", "Child 2"))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `[{"id":"ou1","children":[{"id":"c1","name":"Child 1"},{"id":"c2","name":"Child 2"}]},` +
		`{"id":"ou2","children":[]}]`
	if diff := cmp.Diff(want, toJSON(t, got)); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}

func TestRunNullReference(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "section", "fields=id,dataSet[name]&headless=true", access.System())

	mock.ExpectQuery("SELECT .+ FROM section main LEFT JOIN dataset t1").
		WillReturnRows(sqlmock.NewRows([]string{"c0", "c1", "c2", "c3"}).AddRow("s1", nil, nil, nil))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(`[{"id":"s1","dataSet":null}]`, toJSON(t, got)); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}

func TestRunSyntheticFields(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "dataSet", "fields=id,href,access,organisationUnits::idObjects&absoluteUrls=true&headless=true", access.Principal{UID: "u1"})
	req.Origin = "http://localhost:8080"

	mock.ExpectQuery("SELECT .+ FROM dataset main WHERE").
		WillReturnRows(sqlmock.NewRows([]string{"c0", "c1", "c2", "c3"}).
			AddRow("ds1", "ds1", []byte(`{"owner":"u1","public":"r-------"}`), []byte(`["a","b"]`)))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `[{"id":"ds1","href":"http://localhost:8080/api/dataSets/ds1/gist",` +
		`"access":{"manage":true,"externalize":false,"write":true,"read":true,"update":true,"delete":true},` +
		`"organisationUnits":[{"id":"a"},{"id":"b"}],` +
		`"apiEndpoints":{"organisationUnits":"http://localhost:8080/api/dataSets/ds1/organisationUnits/gist"}}]`
	if diff := cmp.Diff(want, toJSON(t, got)); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}

func TestLinksFromByteUIDs(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "organisationUnit", "fields=id,href,parent,children&headless=true", access.System())

	mock.ExpectQuery("SELECT .+ FROM organisationunit main").
		WillReturnRows(sqlmock.NewRows([]string{"c0", "c1", "c2", "c3"}).
			AddRow([]byte("ou2"), []byte("ou2"), []byte("ou1"), int64(2)))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `[{"id":"ou2","href":"/api/organisationUnits/ou2/gist","parent":"ou1","children":2,` +
		`"apiEndpoints":{"parent":"/api/organisationUnits/ou1/gist","children":"/api/organisationUnits/ou2/children/gist"}}]`
	if diff := cmp.Diff(want, toJSON(t, got)); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}

func TestNullUIDOmitsHref(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "section", "fields=id,href&headless=true", access.System())

	mock.ExpectQuery("SELECT .+ FROM section main").
		WillReturnRows(sqlmock.NewRows([]string{"c0", "c1"}).AddRow(nil, nil))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(`[{"id":null}]`, toJSON(t, got)); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}

func TestEmptyCollectionsSkippedInEndpoints(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "organisationUnit", "fields=id,children&headless=true", access.System())

	mock.ExpectQuery("SELECT .+ FROM organisationunit main").
		WillReturnRows(sqlmock.NewRows([]string{"c0", "c1", "c2"}).AddRow("ou1", "ou1", int64(0)))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(`[{"id":"ou1","children":0}]`, toJSON(t, got)); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
}

func TestRunObjectNotFound(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "organisationUnit", "fields=id", access.System())
	req.Query.ObjectID = "nope"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT main.uid AS c0 FROM organisationunit main WHERE main.uid = $1 ORDER BY main.organisationunitid ASC LIMIT 1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"c0"}))

	_, err := r.Run(context.Background(), req)
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) || nf.Message != "OrganisationUnit with id nope could not be found." {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRunPropertyValue(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "user", "", access.System())
	req.Query.Owner = &query.Owner{Schema: "user", ID: "u1", Property: "surname"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT main.surname AS c0 FROM userinfo main WHERE main.uid = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"c0"}).AddRow("Doe"))

	got, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "Doe" {
		t.Fatalf("got %v, want Doe", got)
	}
}

func TestRunOwnerCollectionChecksOwner(t *testing.T) {
	r, mock := newTestResolver(t)
	req := newRequest(t, "dataSet", "fields=id", access.System())
	req.Query.Owner = &query.Owner{Schema: "dataSet", ID: "ds1", Property: "organisationUnits"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM dataset main WHERE (main.uid = $1) LIMIT 1")).
		WithArgs("ds1").
		WillReturnRows(sqlmock.NewRows([]string{"c0"}))

	_, err := r.Run(context.Background(), req)
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) || nf.Message != "DataSet with id ds1 could not be found." {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestExecutorWrapsStorageErrors(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT 1").WillReturnError(boom)

	_, err := NewExecutor(db).All(context.Background(), planner.Statement{SQL: "SELECT 1"})
	var exec *apperr.ExecutionError
	if !errors.As(err, &exec) || !errors.Is(err, boom) {
		t.Fatalf("expected ExecutionError wrapping cause, got %v", err)
	}
}

func TestExecutorRowsStopsEarly(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT uid FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow("a").AddRow("b").AddRow("c"))

	var seen []any
	for row, err := range NewExecutor(db).Rows(context.Background(), planner.Statement{SQL: "SELECT uid FROM t"}) {
		if err != nil {
			t.Fatalf("rows: %v", err)
		}
		seen = append(seen, row[0])
		if len(seen) == 2 {
			break
		}
	}
	if diff := cmp.Diff([]any{"a", "b"}, seen); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}
