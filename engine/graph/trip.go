package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CreateTrip creates an active trip on the vehicle named by t.VehicleID and
// returns it with ClientID set to the vehicle's owner.
func (g *GraphStore) CreateTrip(ctx context.Context, t domain.Trip) (domain.Trip, error) {
	out, err := g.write(ctx, func(tx CypherRunner) (any, error) {
		rec, err := single(ctx, tx, `MATCH (c:Client)-[:OWNS]->(v:Vehicle {licensePlate: $licensePlate})
			CREATE (t:Trip {
				tripId: $tripId,
				vehicleId: v.licensePlate,
				startTime: $startTime,
				endTime: 0,
				length: 0.0,
				duration: 0.0,
				isCompleted: false,
				version: 0
			})
			RETURN c.clientId AS clientId`,
			map[string]any{
				"licensePlate": t.VehicleID,
				"tripId":       t.TripID,
				"startTime":    millis(t.StartTime),
			})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.ErrVehicleNotFound
		}
		t.ClientID = recordStr(rec, "clientId")
		return t, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Trip{}, fmt.Errorf("create trip %s: %w", t.TripID, domain.ErrDuplicateID)
		}
		return domain.Trip{}, fmt.Errorf("create trip: %w", err)
	}
	return out.(domain.Trip), nil
}

// withOwner extends a query bound to t with the client owning t's vehicle.
const withOwner = `
	WITH t
	OPTIONAL MATCH (c:Client)-[:OWNS]->(:Vehicle {licensePlate: t.vehicleId})
	RETURN t AS n, c.clientId AS clientId`

// lockTrip bumps the trip version, taking its write lock for the rest of tx,
// and returns the trip with its owner. Appends and completion on one trip
// queue here.
func lockTrip(ctx context.Context, tx CypherRunner, tripID string) (domain.Trip, error) {
	rec, err := single(ctx, tx, `MATCH (t:Trip {tripId: $tripId})
		SET t.version = coalesce(t.version, 0) + 1`+withOwner, map[string]any{"tripId": tripID})
	if err != nil {
		return domain.Trip{}, err
	}
	if rec == nil {
		return domain.Trip{}, domain.ErrTripNotFound
	}
	return tripWithOwner(rec)
}

// findTail returns the position of tripID with no outgoing NEXT edge.
func findTail(ctx context.Context, tx CypherRunner, tripID string) (domain.Position, bool, error) {
	result, err := tx.Run(ctx, `MATCH (tail:Position {tripId: $tripId})
		WHERE NOT (tail)-[:NEXT]->()
		RETURN tail AS n`, map[string]any{"tripId": tripID})
	if err != nil {
		return domain.Position{}, false, err
	}
	if !result.Next(ctx) {
		return domain.Position{}, false, nil
	}
	tail, err := positionFromRecord(result.Record())
	if err != nil {
		return domain.Position{}, false, err
	}
	if result.Next(ctx) {
		return domain.Position{}, false, fmt.Errorf("trip %s: position chain has more than one tail", tripID)
	}
	return tail, true, nil
}

// AppendPosition adds p to the end of its trip's chain. Finding the tail,
// creating the node and linking it happen in one transaction under the trip
// lock. The stored timestamp is moved past the tail's if the clock did not
// advance, keeping the chain strictly time-ordered. Appending a position id
// the trip already holds returns the stored position unchanged.
func (g *GraphStore) AppendPosition(ctx context.Context, p domain.Position) (domain.Position, error) {
	out, err := g.write(ctx, func(tx CypherRunner) (any, error) {
		trip, err := lockTrip(ctx, tx, p.TripID)
		if err != nil {
			return nil, err
		}
		rec, err := single(ctx, tx, `MATCH (p:Position {positionId: $positionId, tripId: $tripId})
			RETURN p AS n`, map[string]any{"positionId": p.PositionID, "tripId": p.TripID})
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return positionFromRecord(rec)
		}
		if trip.IsCompleted {
			return nil, domain.ErrTripCompleted
		}

		tail, hasTail, err := findTail(ctx, tx, p.TripID)
		if err != nil {
			return nil, err
		}

		pos := p
		if hasTail && !pos.Timestamp.After(tail.Timestamp) {
			pos.Timestamp = tail.Timestamp.Add(time.Millisecond)
		}
		params := map[string]any{"props": positionToMap(pos)}
		var cypher string
		if hasTail {
			cypher = `MATCH (tail:Position {positionId: $tailId})
				CREATE (tail)-[:NEXT]->(p:Position $props)`
			params["tailId"] = tail.PositionID
		} else {
			cypher = `MATCH (t:Trip {tripId: $tripId})
				CREATE (t)-[:STARTED_AT]->(p:Position $props)`
			params["tripId"] = p.TripID
		}
		if _, err := tx.Run(ctx, cypher, params); err != nil {
			return nil, err
		}
		return pos, nil
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("append position to %s: %w", p.TripID, err)
	}
	return out.(domain.Position), nil
}

// CompleteTrip stops a trip in one transaction. Under the trip lock it reads
// the chain's head and tail, asks finish for the completion values, writes
// them to the trip, links the tail with ENDED_AT and folds the result into
// the vehicle totals. Any failure rolls everything back.
func (g *GraphStore) CompleteTrip(ctx context.Context, tripID string, finish func(domain.TripEndpoints) (domain.Completion, error)) (domain.Trip, error) {
	out, err := g.write(ctx, func(tx CypherRunner) (any, error) {
		trip, err := lockTrip(ctx, tx, tripID)
		if err != nil {
			return nil, err
		}
		if trip.IsCompleted {
			return nil, domain.ErrTripCompleted
		}

		rec, err := single(ctx, tx, `MATCH (:Trip {tripId: $tripId})-[:STARTED_AT]->(first:Position)
			RETURN first AS n`, map[string]any{"tripId": tripID})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: no recorded positions", domain.ErrTripNotFound)
		}
		first, err := positionFromRecord(rec)
		if err != nil {
			return nil, err
		}
		tail, ok, err := findTail(ctx, tx, tripID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: no chain tail", domain.ErrTripNotFound)
		}

		c, err := finish(domain.TripEndpoints{Trip: trip, First: first, Tail: tail})
		if err != nil {
			return nil, err
		}

		rec, err = single(ctx, tx, `MATCH (t:Trip {tripId: $tripId}), (tail:Position {positionId: $tailId})
			SET t.endTime = $endTime, t.length = $length, t.duration = $duration, t.isCompleted = true
			CREATE (tail)-[:ENDED_AT]->(t)
			RETURN t AS n`, map[string]any{
			"tripId":   tripID,
			"tailId":   tail.PositionID,
			"endTime":  millis(c.EndTime),
			"length":   c.Length,
			"duration": c.Duration,
		})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.ErrTripNotFound
		}
		done, err := tripFromRecord(rec)
		if err != nil {
			return nil, err
		}
		done.ClientID = trip.ClientID

		if err := applyCompletedTrip(ctx, tx, done.VehicleID, c.Length, c.Duration); err != nil {
			return nil, err
		}
		return done, nil
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("complete trip %s: %w", tripID, err)
	}
	return out.(domain.Trip), nil
}

// GetTrip returns a trip by id with ClientID set to its vehicle's owner.
func (g *GraphStore) GetTrip(ctx context.Context, tripID string) (domain.Trip, error) {
	out, err := g.read(ctx, func(tx CypherRunner) (any, error) {
		rec, err := single(ctx, tx, `MATCH (t:Trip {tripId: $tripId})`+withOwner,
			map[string]any{"tripId": tripID})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.ErrTripNotFound
		}
		return tripWithOwner(rec)
	})
	if err != nil {
		return domain.Trip{}, err
	}
	return out.(domain.Trip), nil
}

// ListTrips returns the trips of clientID's vehicles, newest first. A
// non-empty licensePlate restricts the list to that vehicle.
func (g *GraphStore) ListTrips(ctx context.Context, clientID, licensePlate string) ([]domain.Trip, error) {
	out, err := g.read(ctx, func(tx CypherRunner) (any, error) {
		rec, err := single(ctx, tx, `MATCH (c:Client {clientId: $clientId}) RETURN c.clientId AS clientId`,
			map[string]any{"clientId": clientID})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.ErrClientNotFound
		}

		result, err := tx.Run(ctx, `MATCH (c:Client {clientId: $clientId})-[:OWNS]->(v:Vehicle)
			WHERE $licensePlate = '' OR v.licensePlate = $licensePlate
			MATCH (t:Trip {vehicleId: v.licensePlate})
			RETURN t AS n, c.clientId AS clientId
			ORDER BY t.startTime DESC`,
			map[string]any{"clientId": clientID, "licensePlate": licensePlate})
		if err != nil {
			return nil, err
		}
		trips := []domain.Trip{}
		for result.Next(ctx) {
			t, err := tripWithOwner(result.Record())
			if err != nil {
				return nil, err
			}
			trips = append(trips, t)
		}
		return trips, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Trip), nil
}

// TripPositions returns the trip's positions in chain order.
func (g *GraphStore) TripPositions(ctx context.Context, tripID string) ([]domain.Position, error) {
	out, err := g.read(ctx, func(tx CypherRunner) (any, error) {
		rec, err := single(ctx, tx, `MATCH (t:Trip {tripId: $tripId}) RETURN t.tripId AS tripId`,
			map[string]any{"tripId": tripID})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.ErrTripNotFound
		}

		result, err := tx.Run(ctx, `MATCH (:Trip {tripId: $tripId})-[:STARTED_AT]->(first:Position)
			MATCH path = (first)-[:NEXT*0..]->(p:Position)
			RETURN p AS n
			ORDER BY length(path)`, map[string]any{"tripId": tripID})
		if err != nil {
			return nil, err
		}
		chain := []domain.Position{}
		for result.Next(ctx) {
			p, err := positionFromRecord(result.Record())
			if err != nil {
				return nil, err
			}
			chain = append(chain, p)
		}
		return chain, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Position), nil
}

func tripFromProps(props map[string]any) domain.Trip {
	t := domain.Trip{
		TripID:      strProp(props, "tripId"),
		VehicleID:   strProp(props, "vehicleId"),
		StartTime:   fromMillis(intProp(props, "startTime")),
		Length:      floatProp(props, "length"),
		Duration:    floatProp(props, "duration"),
		IsCompleted: boolProp(props, "isCompleted"),
	}
	if end := intProp(props, "endTime"); end != 0 {
		e := fromMillis(end)
		t.EndTime = &e
	}
	return t
}

func tripFromRecord(rec *neo4j.Record) (domain.Trip, error) {
	props, err := nodeProps(rec, "n")
	if err != nil {
		return domain.Trip{}, err
	}
	return tripFromProps(props), nil
}

// tripWithOwner reads a trip from column n and its owner from clientId.
func tripWithOwner(rec *neo4j.Record) (domain.Trip, error) {
	t, err := tripFromRecord(rec)
	if err != nil {
		return domain.Trip{}, err
	}
	t.ClientID = recordStr(rec, "clientId")
	return t, nil
}

func positionToMap(p domain.Position) map[string]any {
	return map[string]any{
		"positionId": p.PositionID,
		"tripId":     p.TripID,
		"latitude":   p.Latitude,
		"longitude":  p.Longitude,
		"timestamp":  millis(p.Timestamp),
	}
}

func positionFromProps(props map[string]any) domain.Position {
	return domain.Position{
		PositionID: strProp(props, "positionId"),
		TripID:     strProp(props, "tripId"),
		Latitude:   floatProp(props, "latitude"),
		Longitude:  floatProp(props, "longitude"),
		Timestamp:  fromMillis(intProp(props, "timestamp")),
	}
}

func positionFromRecord(rec *neo4j.Record) (domain.Position, error) {
	props, err := nodeProps(rec, "n")
	if err != nil {
		return domain.Position{}, err
	}
	return positionFromProps(props), nil
}
