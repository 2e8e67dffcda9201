// Package repo defines the generic read-side Repository interface and list options.
package repo

import "context"

// Reader is a generic read-only repository keyed by a unique property.
type Reader[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
}

// ListOpts controls pagination, ordering and equality filtering for List.
type ListOpts struct {
	Offset  int
	Limit   int
	Filter  map[string]any
	OrderBy string
	Desc    bool
}
