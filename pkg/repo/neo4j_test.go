package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

type item struct {
	ID   string
	Name string
}

func itemFromRecord(rec *neo4j.Record) (item, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return item{}, err
	}
	id, _ := node.Props["id"].(string)
	name, _ := node.Props["name"].(string)
	return item{ID: id, Name: name}, nil
}

type fakeResult struct {
	records []*neo4j.Record
	idx     int
}

func (r *fakeResult) Next(_ context.Context) bool {
	if r.idx >= len(r.records) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeResult) Record() *neo4j.Record { return r.records[r.idx-1] }

type fakeRunner struct {
	records []*neo4j.Record
	err     error
	cypher  string
	params  map[string]any
	closed  bool
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) (Result, error) {
	f.cypher, f.params = cypher, params
	if f.err != nil {
		return nil, f.err
	}
	return &fakeResult{records: f.records}, nil
}

func (f *fakeRunner) Close(_ context.Context) error {
	f.closed = true
	return nil
}

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"n"}, Values: []any{dbtype.Node{Props: props}}}
}

func newTestRepo(f *fakeRunner, opts ...Neo4jOption[item, string]) *Neo4jRepo[item, string] {
	return NewNeo4jRepo[item, string](func(context.Context) Runner { return f }, "Item", itemFromRecord, opts...)
}

func TestNewNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[item, string](nil, "Node", nil)
	if r.idKey != "id" {
		t.Fatalf("expected default idKey=id, got %s", r.idKey)
	}
	if !errors.Is(r.notFound, ErrNotFound) {
		t.Fatalf("expected default not-found error, got %v", r.notFound)
	}
}

func TestGet_UsesIDKey(t *testing.T) {
	f := &fakeRunner{records: []*neo4j.Record{nodeRecord(map[string]any{"id": "a", "name": "Alpha"})}}
	r := newTestRepo(f, WithIDKey[item, string]("code"))

	got, err := r.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if got.Name != "Alpha" {
		t.Fatalf("wrong item: %+v", got)
	}
	if !strings.Contains(f.cypher, "MATCH (n:Item {code: $id})") {
		t.Fatalf("unexpected cypher: %s", f.cypher)
	}
	if !f.closed {
		t.Fatal("session not closed")
	}
}

func TestGet_NotFound(t *testing.T) {
	sentinel := errors.New("item missing")
	r := newTestRepo(&fakeRunner{}, WithNotFound[item, string](sentinel))
	if _, err := r.Get(context.Background(), "x"); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
}

func TestGet_RunError(t *testing.T) {
	r := newTestRepo(&fakeRunner{err: errors.New("boom")})
	if _, err := r.Get(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestList_FilterAndOrder(t *testing.T) {
	f := &fakeRunner{records: []*neo4j.Record{
		nodeRecord(map[string]any{"id": "a"}),
		nodeRecord(map[string]any{"id": "b"}),
	}}
	r := newTestRepo(f)

	items, err := r.List(context.Background(), ListOpts{
		Filter:  map[string]any{"email": "x@y.z", "bad key": "dropped"},
		OrderBy: "createdAt",
		Desc:    true,
	})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	want := "MATCH (n:Item) WHERE n.email = $f_email RETURN n ORDER BY n.createdAt DESC SKIP $offset LIMIT $limit"
	if f.cypher != want {
		t.Fatalf("cypher = %q\nwant   %q", f.cypher, want)
	}
	if f.params["f_email"] != "x@y.z" || f.params["limit"] != 100 {
		t.Fatalf("unexpected params: %v", f.params)
	}
}

func TestList_RecordError(t *testing.T) {
	f := &fakeRunner{records: []*neo4j.Record{{Keys: []string{"x"}, Values: []any{1}}}}
	if _, err := newTestRepo(f).List(context.Background(), ListOpts{}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestIsIdent(t *testing.T) {
	for _, s := range []string{"email", "licensePlate", "_x", "a1"} {
		if !isIdent(s) {
			t.Errorf("%q should be an identifier", s)
		}
	}
	for _, s := range []string{"", "1a", "a b", "n.x", "a}"} {
		if isIdent(s) {
			t.Errorf("%q should not be an identifier", s)
		}
	}
}
