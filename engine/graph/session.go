package graph

import (
	"context"

	"github.com/WessleyAI/wessley-trips/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CypherResult is the minimal interface needed from a neo4j result.
type CypherResult = repo.Result

// CypherRunner runs a single Cypher statement, inside or outside a transaction.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

// CypherSession is the subset of neo4j.SessionWithContext the store uses.
type CypherSession interface {
	CypherRunner
	Close(ctx context.Context) error
	ExecuteRead(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
}

// SessionOpener opens sessions. Tests substitute their own implementation.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

// DriverOpener opens sessions on a neo4j driver.
type DriverOpener struct {
	Driver   neo4j.DriverWithContext
	Database string
}

// OpenSession implements SessionOpener.
func (o DriverOpener) OpenSession(ctx context.Context) CypherSession {
	return &driverSession{sess: o.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: o.Database})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s *driverSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

func (s *driverSession) ExecuteRead(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx: tx})
	})
}

func (s *driverSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx: tx})
	})
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (r txRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return r.tx.Run(ctx, cypher, params)
}
