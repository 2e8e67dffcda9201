// Package graph stores clients, vehicles, trips and position chains in Neo4j.
//
// Every multi-step write runs inside one managed write transaction. Trip
// mutations start by bumping the trip's version property, which takes the
// node's write lock and serializes appends and completion per trip while
// leaving other trips untouched.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const constraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

// GraphStore provides the trip-tracking graph operations.
type GraphStore struct {
	opener  SessionOpener
	clients *repo.Neo4jRepo[domain.Client, string]
}

// New creates a GraphStore on a neo4j driver using the default database.
func New(driver neo4j.DriverWithContext) *GraphStore {
	return NewWithOpener(DriverOpener{Driver: driver})
}

// NewWithOpener creates a GraphStore using a custom SessionOpener.
func NewWithOpener(opener SessionOpener) *GraphStore {
	g := &GraphStore{opener: opener}
	open := func(ctx context.Context) repo.Runner { return g.opener.OpenSession(ctx) }
	g.clients = repo.NewNeo4jRepo[domain.Client, string](open, "Client", clientFromRecord,
		repo.WithIDKey[domain.Client, string]("clientId"),
		repo.WithNotFound[domain.Client, string](domain.ErrClientNotFound),
	)
	return g
}

// write runs work in a managed write transaction and maps driver errors onto
// the domain taxonomy.
func (g *GraphStore) write(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	out, err := sess.ExecuteWrite(ctx, work)
	return out, classify(err)
}

func (g *GraphStore) read(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	out, err := sess.ExecuteRead(ctx, work)
	return out, classify(err)
}

// classify maps driver errors onto domain error kinds. Domain errors raised
// inside a transaction pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		domain.ErrNotFound, domain.ErrConflict, domain.ErrValidation,
		domain.ErrAggregateUpdateFailed, domain.ErrStoreUnavailable,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == constraintViolation {
		return fmt.Errorf("%w: %s", domain.ErrConflict, neoErr.Msg)
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsRetryable(err) ||
		neo4j.IsTransactionExecutionLimit(err) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Unavailable(err)
	}
	return err
}

// single runs cypher and returns its first record, or nil when there is none.
func single(ctx context.Context, tx CypherRunner, cypher string, params map[string]any) (*neo4j.Record, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		return nil, nil
	}
	return result.Record(), nil
}

// nodeProps returns the properties of the node stored under key.
func nodeProps(rec *neo4j.Record, key string) (map[string]any, error) {
	node, isNil, err := neo4j.GetRecordValue[dbtype.Node](rec, key)
	if err != nil {
		return nil, err
	}
	if isNil {
		return nil, fmt.Errorf("record field %q is null", key)
	}
	return node.Props, nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func boolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

// recordStr reads a string column from a record.
func recordStr(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

// Times are stored as Unix milliseconds; zero means unset.
func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// countOf reads the "count" column of rec; a nil record counts as zero.
func countOf(rec *neo4j.Record) int64 {
	if rec == nil {
		return 0
	}
	v, _ := rec.Get("count")
	n, _ := v.(int64)
	return n
}
