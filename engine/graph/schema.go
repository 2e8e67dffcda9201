package graph

import (
	"context"
	"fmt"
)

// schemaStatements create the uniqueness constraints that back write-time
// uniqueness plus the index used for tail lookups.
var schemaStatements = []string{
	`CREATE CONSTRAINT client_id IF NOT EXISTS FOR (c:Client) REQUIRE c.clientId IS UNIQUE`,
	`CREATE CONSTRAINT client_email IF NOT EXISTS FOR (c:Client) REQUIRE c.email IS UNIQUE`,
	`CREATE CONSTRAINT vehicle_plate IF NOT EXISTS FOR (v:Vehicle) REQUIRE v.licensePlate IS UNIQUE`,
	`CREATE CONSTRAINT vehicle_vin IF NOT EXISTS FOR (v:Vehicle) REQUIRE v.vin IS UNIQUE`,
	`CREATE CONSTRAINT trip_id IF NOT EXISTS FOR (t:Trip) REQUIRE t.tripId IS UNIQUE`,
	`CREATE CONSTRAINT position_id IF NOT EXISTS FOR (p:Position) REQUIRE p.positionId IS UNIQUE`,
	`CREATE CONSTRAINT sequence_name IF NOT EXISTS FOR (s:Sequence) REQUIRE s.name IS UNIQUE`,
	`CREATE INDEX position_trip IF NOT EXISTS FOR (p:Position) ON (p.tripId)`,
	`CREATE INDEX trip_vehicle IF NOT EXISTS FOR (t:Trip) ON (t.vehicleId)`,
}

// Sequence names. Each Sequence node counts registrations of one label and
// doubles as the lock that serializes those registrations.
const (
	seqClient  = "client"
	seqVehicle = "vehicle"
)

var sequenceLabels = map[string]string{
	seqClient:  "Client",
	seqVehicle: "Vehicle",
}

// EnsureSchema creates constraints and indexes. Schema statements cannot share
// a transaction with data writes, so each runs on its own.
func (g *GraphStore) EnsureSchema(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	for _, stmt := range schemaStatements {
		if _, err := sess.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", classify(err))
		}
	}
	return nil
}

// SeedSequences raises every registration sequence to at least the number of
// nodes already persisted and returns the resulting values. It is the explicit
// startup step that replaces process-wide counters.
func (g *GraphStore) SeedSequences(ctx context.Context) (map[string]int64, error) {
	out, err := g.write(ctx, func(tx CypherRunner) (any, error) {
		seeded := make(map[string]int64, len(sequenceLabels))
		for name, label := range sequenceLabels {
			cypher := fmt.Sprintf(`MATCH (n:%s) WITH count(n) AS existing
				MERGE (s:Sequence {name: $name})
				SET s.value = CASE WHEN coalesce(s.value, 0) > existing THEN s.value ELSE existing END
				RETURN s.value AS value`, label)
			rec, err := single(ctx, tx, cypher, map[string]any{"name": name})
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, fmt.Errorf("seed sequence %s: no result", name)
			}
			v, _ := rec.Get("value")
			n, _ := v.(int64)
			seeded[name] = n
		}
		return seeded, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]int64), nil
}

// nextSequence increments the named sequence inside tx and returns the new
// value. The SET holds the Sequence node's write lock until tx ends.
func nextSequence(ctx context.Context, tx CypherRunner, name string) (int64, error) {
	rec, err := single(ctx, tx, `MERGE (s:Sequence {name: $name})
		ON CREATE SET s.value = 0
		SET s.value = s.value + 1
		RETURN s.value AS value`, map[string]any{"name": name})
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, fmt.Errorf("sequence %s: no result", name)
	}
	v, _ := rec.Get("value")
	n, _ := v.(int64)
	return n, nil
}

// Ping checks that the database answers queries.
func (g *GraphStore) Ping(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	result, err := sess.Run(ctx, "RETURN 1 AS ok", nil)
	if err != nil {
		return classify(err)
	}
	if !result.Next(ctx) {
		return fmt.Errorf("ping: empty result")
	}
	return nil
}

// Reset deletes every node and relationship.
func (g *GraphStore) Reset(ctx context.Context) error {
	_, err := g.write(ctx, func(tx CypherRunner) (any, error) {
		_, err := tx.Run(ctx, `MATCH (n) DETACH DELETE n`, nil)
		return nil, err
	})
	return err
}

// NodeCounts returns node counts grouped by label.
func (g *GraphStore) NodeCounts(ctx context.Context) (map[string]int64, error) {
	out, err := g.read(ctx, func(tx CypherRunner) (any, error) {
		result, err := tx.Run(ctx, `MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`, nil)
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int64)
		for result.Next(ctx) {
			rec := result.Record()
			typ, _ := rec.Get("type")
			cnt, _ := rec.Get("count")
			if t, ok := typ.(string); ok {
				if c, ok := cnt.(int64); ok {
					counts[t] = c
				}
			}
		}
		return counts, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]int64), nil
}
