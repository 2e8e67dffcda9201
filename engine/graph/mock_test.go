package graph

import (
	"context"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// step scripts the result of the first query whose text contains match.
type step struct {
	match   string
	records []*neo4j.Record
	err     error
}

// scriptTx answers queries from a list of steps; unmatched queries return an
// empty result. Each step is used once.
type scriptTx struct {
	steps   []step
	queries []string
	params  []map[string]any
}

func (s *scriptTx) Run(_ context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.queries = append(s.queries, cypher)
	s.params = append(s.params, params)
	for i, st := range s.steps {
		if strings.Contains(cypher, st.match) {
			s.steps = append(s.steps[:i], s.steps[i+1:]...)
			if st.err != nil {
				return nil, st.err
			}
			return newMockResult(st.records...), nil
		}
	}
	return newMockResult(), nil
}

// ran reports whether any executed query contains substr, and its params.
func (s *scriptTx) ran(substr string) (map[string]any, bool) {
	for i, q := range s.queries {
		if strings.Contains(q, substr) {
			return s.params[i], true
		}
	}
	return nil, false
}

type mockSession struct {
	tx     *scriptTx
	txErr  error
	closed bool
	reads  int
	writes int
}

func newMockSession(steps ...step) *mockSession {
	return &mockSession{tx: &scriptTx{steps: steps}}
}

func (m *mockSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return m.tx.Run(ctx, cypher, params)
}

func (m *mockSession) Close(_ context.Context) error {
	m.closed = true
	return nil
}

func (m *mockSession) ExecuteRead(_ context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	m.reads++
	if m.txErr != nil {
		return nil, m.txErr
	}
	return work(m.tx)
}

func (m *mockSession) ExecuteWrite(_ context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	m.writes++
	if m.txErr != nil {
		return nil, m.txErr
	}
	return work(m.tx)
}

type mockOpener struct {
	session CypherSession
}

func (o *mockOpener) OpenSession(_ context.Context) CypherSession {
	return o.session
}

type mockResult struct {
	records []*neo4j.Record
	idx     int
}

func newMockResult(records ...*neo4j.Record) *mockResult {
	return &mockResult{records: records}
}

func (r *mockResult) Next(_ context.Context) bool {
	if r.idx >= len(r.records) {
		return false
	}
	r.idx++
	return true
}

func (r *mockResult) Record() *neo4j.Record {
	return r.records[r.idx-1]
}

// rec builds a record from alternating key/value pairs.
func rec(kv ...any) *neo4j.Record {
	r := &neo4j.Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Keys = append(r.Keys, kv[i].(string))
		r.Values = append(r.Values, kv[i+1])
	}
	return r
}

func node(props map[string]any) dbtype.Node {
	return dbtype.Node{Props: props}
}

func newMockStore(steps ...step) (*GraphStore, *mockSession) {
	sess := newMockSession(steps...)
	return NewWithOpener(&mockOpener{session: sess}), sess
}
