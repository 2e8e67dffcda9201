package graph

import (
	"context"
	"fmt"

	"github.com/WessleyAI/wessley-trips/engine/domain"
)

// applyCompletedTrip adds a completed trip's length and duration to the
// vehicle's running totals. It must run in the transaction that marks the
// trip completed; a missing vehicle fails that transaction.
func applyCompletedTrip(ctx context.Context, tx CypherRunner, licensePlate string, length, duration float64) error {
	rec, err := single(ctx, tx, `MATCH (v:Vehicle {licensePlate: $licensePlate})
		SET v.totalTripLength = coalesce(v.totalTripLength, 0.0) + $length,
		    v.totalTripDuration = coalesce(v.totalTripDuration, 0.0) + $duration
		RETURN v.totalTripLength AS totalTripLength`,
		map[string]any{"licensePlate": licensePlate, "length": length, "duration": duration})
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: vehicle %q not found", domain.ErrAggregateUpdateFailed, licensePlate)
	}
	return nil
}
