package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrNotFound is returned by Get when no node carries the requested id,
// unless the repository was built WithNotFound.
var ErrNotFound = errors.New("not found")

// Result is the minimal interface needed from a neo4j result.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// Runner is the minimal interface needed from a neo4j session.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// Neo4jRepo is a generic Neo4j-backed read repository over nodes of one label.
type Neo4jRepo[T any, ID comparable] struct {
	open       func(ctx context.Context) Runner
	label      string
	idKey      string
	fromRecord func(*neo4j.Record) (T, error)
	notFound   error
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithNotFound sets the error Get returns for a missing node.
func WithNotFound[T any, ID comparable](err error) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.notFound = err }
}

// NewNeo4jRepo creates a repository reading nodes labelled label. open is
// called once per operation and the returned session is closed afterwards.
func NewNeo4jRepo[T any, ID comparable](
	open func(ctx context.Context) Runner,
	label string,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		open:       open,
		label:      label,
		idKey:      "id",
		fromRecord: fromRecord,
		notFound:   ErrNotFound,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Reader[any, string] = (*Neo4jRepo[any, string])(nil)

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if !result.Next(ctx) {
		return zero, r.notFound
	}
	return r.fromRecord(result.Record())
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	sess := r.open(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	cypher, params := r.listQuery(opts)
	params["offset"] = opts.Offset
	params["limit"] = limit

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	var items []T
	for result.Next(ctx) {
		item, err := r.fromRecord(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// listQuery builds the MATCH for List. Filter keys and OrderBy are property
// names and are dropped unless they are plain identifiers.
func (r *Neo4jRepo[T, ID]) listQuery(opts ListOpts) (string, map[string]any) {
	params := make(map[string]any)
	keys := make([]string, 0, len(opts.Filter))
	for k := range opts.Filter {
		if isIdent(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", r.label)
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "n.%s = $f_%s", k, k)
		params["f_"+k] = opts.Filter[k]
	}
	b.WriteString(" RETURN n")
	if isIdent(opts.OrderBy) {
		fmt.Fprintf(&b, " ORDER BY n.%s", opts.OrderBy)
		if opts.Desc {
			b.WriteString(" DESC")
		}
	}
	b.WriteString(" SKIP $offset LIMIT $limit")
	return b.String(), params
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || (i > 0 && c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
