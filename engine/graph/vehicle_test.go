package graph

import (
	"errors"
	"testing"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var civic = domain.VehicleInput{Model: "Civic", Manufacturer: "Honda", LicensePlate: "AAA111", VIN: "1HGCM82633A004352", ManufactureYear: 2019}

func TestCreateVehicle_Success(t *testing.T) {
	gs, sess := newMockStore(
		step{match: "MERGE (s:Sequence", records: []*neo4j.Record{rec("value", int64(1))}},
		step{match: "RETURN c.clientId", records: []*neo4j.Record{rec("clientId", "AdaLov1")}},
		step{match: "v.vin = $vin", records: []*neo4j.Record{rec("count", int64(0))}},
	)
	v, err := gs.CreateVehicle(ctx, "AdaLov1", civic)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if v.OwnerID != "AdaLov1" || v.LicensePlate != "AAA111" || v.TotalTripLength != 0 {
		t.Fatalf("unexpected vehicle: %+v", v)
	}
	params, ok := sess.tx.ran("CREATE (c)-[:OWNS]->(v:Vehicle $props)")
	if !ok {
		t.Fatal("vehicle not created")
	}
	props := params["props"].(map[string]any)
	if props["manufactureYear"] != int64(2019) || props["totalTripDuration"] != 0.0 {
		t.Fatalf("unexpected props: %v", props)
	}
	if _, ok := props["ownerId"]; ok {
		t.Fatal("ownership is an edge, not a property")
	}
}

func TestCreateVehicle_ClientMissing(t *testing.T) {
	gs, sess := newMockStore(step{match: "MERGE (s:Sequence", records: []*neo4j.Record{rec("value", int64(1))}})
	_, err := gs.CreateVehicle(ctx, "nobody", civic)
	if !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
	if _, ok := sess.tx.ran(":OWNS"); ok {
		t.Fatal("vehicle must not be created")
	}
}

func TestCreateVehicle_Taken(t *testing.T) {
	gs, _ := newMockStore(
		step{match: "MERGE (s:Sequence", records: []*neo4j.Record{rec("value", int64(1))}},
		step{match: "RETURN c.clientId", records: []*neo4j.Record{rec("clientId", "AdaLov1")}},
		step{match: "v.vin = $vin", records: []*neo4j.Record{rec("count", int64(1))}},
	)
	_, err := gs.CreateVehicle(ctx, "AdaLov1", civic)
	if !errors.Is(err, domain.ErrVehicleTaken) {
		t.Fatalf("expected vehicle taken, got %v", err)
	}
}

func TestGetVehicle(t *testing.T) {
	gs, sess := newMockStore(step{match: "MATCH (v:Vehicle {licensePlate", records: []*neo4j.Record{
		rec("n", node(map[string]any{
			"licensePlate": "AAA111", "vin": "V", "model": "Civic", "manufacturer": "Honda",
			"manufactureYear": int64(2019), "totalTripLength": 344.2, "totalTripDuration": int64(2),
		}), "ownerId", "AdaLov1"),
	}})
	v, err := gs.GetVehicle(ctx, "AAA111")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if v.OwnerID != "AdaLov1" || v.ManufactureYear != 2019 || v.TotalTripLength != 344.2 || v.TotalTripDuration != 2 {
		t.Fatalf("unexpected vehicle: %+v", v)
	}
	if sess.reads != 1 {
		t.Fatalf("expected read transaction, got %d", sess.reads)
	}

	gs, _ = newMockStore()
	if _, err := gs.GetVehicle(ctx, "ZZZ"); !errors.Is(err, domain.ErrVehicleNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListVehicles(t *testing.T) {
	gs, _ := newMockStore(
		step{match: "RETURN c.clientId AS clientId", records: []*neo4j.Record{rec("clientId", "AdaLov1")}},
		step{match: "ORDER BY v.licensePlate", records: []*neo4j.Record{
			rec("n", node(map[string]any{"licensePlate": "AAA111"}), "ownerId", "AdaLov1"),
			rec("n", node(map[string]any{"licensePlate": "BBB222"}), "ownerId", "AdaLov1"),
		}},
	)
	vs, err := gs.ListVehicles(ctx, "AdaLov1")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(vs) != 2 || vs[1].LicensePlate != "BBB222" || vs[0].OwnerID != "AdaLov1" {
		t.Fatalf("unexpected vehicles: %+v", vs)
	}

	gs, _ = newMockStore()
	if _, err := gs.ListVehicles(ctx, "nobody"); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}
