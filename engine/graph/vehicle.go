package graph

import (
	"context"
	"fmt"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CreateVehicle registers a vehicle under clientID in one write transaction.
// The vehicle sequence lock serializes registrations so the plate/VIN check
// and the create cannot interleave with another registration.
func (g *GraphStore) CreateVehicle(ctx context.Context, clientID string, in domain.VehicleInput) (domain.Vehicle, error) {
	out, err := g.write(ctx, func(tx CypherRunner) (any, error) {
		if _, err := nextSequence(ctx, tx, seqVehicle); err != nil {
			return nil, err
		}

		rec, err := single(ctx, tx, `MATCH (c:Client {clientId: $clientId}) RETURN c.clientId AS clientId`,
			map[string]any{"clientId": clientID})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.ErrClientNotFound
		}

		rec, err = single(ctx, tx, `MATCH (v:Vehicle)
			WHERE v.licensePlate = $licensePlate OR v.vin = $vin
			RETURN count(v) AS count`,
			map[string]any{"licensePlate": in.LicensePlate, "vin": in.VIN})
		if err != nil {
			return nil, err
		}
		if countOf(rec) > 0 {
			return nil, domain.ErrVehicleTaken
		}

		v := domain.Vehicle{
			LicensePlate:    in.LicensePlate,
			VIN:             in.VIN,
			Model:           in.Model,
			Manufacturer:    in.Manufacturer,
			ManufactureYear: in.ManufactureYear,
			OwnerID:         clientID,
		}
		if _, err := tx.Run(ctx, `MATCH (c:Client {clientId: $clientId})
			CREATE (c)-[:OWNS]->(v:Vehicle $props)`,
			map[string]any{"clientId": clientID, "props": vehicleToMap(v)}); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("create vehicle: %w", err)
	}
	return out.(domain.Vehicle), nil
}

// GetVehicle returns a vehicle and its owner's client id.
func (g *GraphStore) GetVehicle(ctx context.Context, licensePlate string) (domain.Vehicle, error) {
	out, err := g.read(ctx, func(tx CypherRunner) (any, error) {
		rec, err := single(ctx, tx, `MATCH (v:Vehicle {licensePlate: $licensePlate})
			OPTIONAL MATCH (c:Client)-[:OWNS]->(v)
			RETURN v AS n, c.clientId AS ownerId`,
			map[string]any{"licensePlate": licensePlate})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.ErrVehicleNotFound
		}
		return vehicleFromRecord(rec)
	})
	if err != nil {
		return domain.Vehicle{}, err
	}
	return out.(domain.Vehicle), nil
}

// ListVehicles returns the vehicles owned by clientID ordered by plate.
func (g *GraphStore) ListVehicles(ctx context.Context, clientID string) ([]domain.Vehicle, error) {
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
			RETURN v AS n, c.clientId AS ownerId
			ORDER BY v.licensePlate`,
			map[string]any{"clientId": clientID})
		if err != nil {
			return nil, err
		}
		vehicles := []domain.Vehicle{}
		for result.Next(ctx) {
			v, err := vehicleFromRecord(result.Record())
			if err != nil {
				return nil, err
			}
			vehicles = append(vehicles, v)
		}
		return vehicles, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Vehicle), nil
}

func vehicleToMap(v domain.Vehicle) map[string]any {
	return map[string]any{
		"licensePlate":      v.LicensePlate,
		"vin":               v.VIN,
		"model":             v.Model,
		"manufacturer":      v.Manufacturer,
		"manufactureYear":   int64(v.ManufactureYear),
		"totalTripLength":   v.TotalTripLength,
		"totalTripDuration": v.TotalTripDuration,
	}
}

func vehicleFromProps(props map[string]any) domain.Vehicle {
	return domain.Vehicle{
		LicensePlate:      strProp(props, "licensePlate"),
		VIN:               strProp(props, "vin"),
		Model:             strProp(props, "model"),
		Manufacturer:      strProp(props, "manufacturer"),
		ManufactureYear:   int(intProp(props, "manufactureYear")),
		TotalTripLength:   floatProp(props, "totalTripLength"),
		TotalTripDuration: floatProp(props, "totalTripDuration"),
	}
}

func vehicleFromRecord(rec *neo4j.Record) (domain.Vehicle, error) {
	props, err := nodeProps(rec, "n")
	if err != nil {
		return domain.Vehicle{}, err
	}
	v := vehicleFromProps(props)
	v.OwnerID = recordStr(rec, "ownerId")
	return v, nil
}
