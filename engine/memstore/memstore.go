// Package memstore is an in-memory implementation of the trip-tracking store.
// It backs unit tests and the "memory" backend of cmd/api.
//
// Registrations are serialized by the registry mutex. Each trip carries its
// own mutex, so appends and completion on one trip queue while other trips
// proceed. Lock order is trip before registry; nothing holds the registry
// lock while waiting for a trip.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/WessleyAI/wessley-trips/engine/domain"
)

type tripEntry struct {
	mu    sync.Mutex
	trip  domain.Trip
	chain []domain.Position
	index map[string]int // positionId -> chain offset
}

// Store holds clients, vehicles, trips and their position chains.
type Store struct {
	mu       sync.RWMutex
	clients  map[string]domain.Client
	emails   map[string]string
	vehicles map[string]*domain.Vehicle
	vins     map[string]string
	trips    map[string]*tripEntry
	seq      map[string]int64
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.clients = map[string]domain.Client{}
	s.emails = map[string]string{}
	s.vehicles = map[string]*domain.Vehicle{}
	s.vins = map[string]string{}
	s.trips = map[string]*tripEntry{}
	s.seq = map[string]int64{}
}

// EnsureSchema is a no-op; it exists so Store satisfies the same contract as
// the graph store.
func (s *Store) EnsureSchema(context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// SeedSequences raises each sequence to at least the number of stored
// records and returns the values.
func (s *Store) SeedSequences(context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq["client"] = max(s.seq["client"], int64(len(s.clients)))
	s.seq["vehicle"] = max(s.seq["vehicle"], int64(len(s.vehicles)))
	return map[string]int64{"client": s.seq["client"], "vehicle": s.seq["vehicle"]}, nil
}

// Reset drops all data.
func (s *Store) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// NodeCounts returns record counts keyed like the graph labels.
func (s *Store) NodeCounts(context.Context) (map[string]int64, error) {
	s.mu.RLock()
	entries := make([]*tripEntry, 0, len(s.trips))
	for _, e := range s.trips {
		entries = append(entries, e)
	}
	counts := map[string]int64{
		"Client":  int64(len(s.clients)),
		"Vehicle": int64(len(s.vehicles)),
		"Trip":    int64(len(s.trips)),
	}
	s.mu.RUnlock()

	var positions int64
	for _, e := range entries {
		e.mu.Lock()
		positions += int64(len(e.chain))
		e.mu.Unlock()
	}
	counts["Position"] = positions
	return counts, nil
}

// CreateClient registers a client. The sequence bump, email check and insert
// happen under one lock; a rejected registration leaves the sequence alone.
func (s *Store) CreateClient(_ context.Context, in domain.ClientInput, idFor func(seq int64) string) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.seq["client"] + 1
	if _, taken := s.emails[in.Email]; taken {
		return domain.Client{}, fmt.Errorf("create client: %w", domain.ErrEmailTaken)
	}
	c := domain.Client{
		ClientID:  idFor(next),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		BirthDate: in.BirthDate,
	}
	if _, dup := s.clients[c.ClientID]; dup {
		return domain.Client{}, fmt.Errorf("create client %s: %w", c.ClientID, domain.ErrDuplicateID)
	}
	s.seq["client"] = next
	s.clients[c.ClientID] = c
	s.emails[c.Email] = c.ClientID
	return c, nil
}

// GetClient returns a client by id.
func (s *Store) GetClient(_ context.Context, clientID string) (domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return domain.Client{}, domain.ErrClientNotFound
	}
	return c, nil
}

// ListClients returns clients matching every non-empty field of f, ordered
// by id.
func (s *Store) ListClients(_ context.Context, f domain.ClientFilter) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Client{}
	for _, c := range s.clients {
		if f.ClientID != "" && c.ClientID != f.ClientID {
			continue
		}
		if f.Email != "" && c.Email != f.Email {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// CreateVehicle registers a vehicle owned by clientID.
func (s *Store) CreateVehicle(_ context.Context, clientID string, in domain.VehicleInput) (domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return domain.Vehicle{}, fmt.Errorf("create vehicle: %w", domain.ErrClientNotFound)
	}
	_, plateTaken := s.vehicles[in.LicensePlate]
	_, vinTaken := s.vins[in.VIN]
	if plateTaken || vinTaken {
		return domain.Vehicle{}, fmt.Errorf("create vehicle: %w", domain.ErrVehicleTaken)
	}
	v := &domain.Vehicle{
		LicensePlate:    in.LicensePlate,
		VIN:             in.VIN,
		Model:           in.Model,
		Manufacturer:    in.Manufacturer,
		ManufactureYear: in.ManufactureYear,
		OwnerID:         clientID,
	}
	s.seq["vehicle"]++
	s.vehicles[v.LicensePlate] = v
	s.vins[v.VIN] = v.LicensePlate
	return *v, nil
}

// GetVehicle returns a vehicle by license plate.
func (s *Store) GetVehicle(_ context.Context, licensePlate string) (domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[licensePlate]
	if !ok {
		return domain.Vehicle{}, domain.ErrVehicleNotFound
	}
	return *v, nil
}

// ListVehicles returns the vehicles owned by clientID ordered by plate.
func (s *Store) ListVehicles(_ context.Context, clientID string) ([]domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[clientID]; !ok {
		return nil, domain.ErrClientNotFound
	}
	out := []domain.Vehicle{}
	for _, v := range s.vehicles {
		if v.OwnerID == clientID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LicensePlate < out[j].LicensePlate })
	return out, nil
}

// CreateTrip creates an active trip on the vehicle t.VehicleID.
func (s *Store) CreateTrip(_ context.Context, t domain.Trip) (domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[t.VehicleID]
	if !ok {
		return domain.Trip{}, fmt.Errorf("create trip: %w", domain.ErrVehicleNotFound)
	}
	if _, dup := s.trips[t.TripID]; dup {
		return domain.Trip{}, fmt.Errorf("create trip %s: %w", t.TripID, domain.ErrDuplicateID)
	}
	t.ClientID = v.OwnerID
	t.StartTime = t.StartTime.UTC().Truncate(time.Millisecond)
	t.EndTime = nil
	t.Length, t.Duration, t.IsCompleted = 0, 0, false
	s.trips[t.TripID] = &tripEntry{trip: t, index: map[string]int{}}
	return t, nil
}

func (s *Store) entry(tripID string) (*tripEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.trips[tripID]
	if !ok {
		return nil, domain.ErrTripNotFound
	}
	return e, nil
}

// AppendPosition adds p to the end of its trip's chain under the trip lock.
// A position id the trip already holds returns the stored position.
func (s *Store) AppendPosition(_ context.Context, p domain.Position) (domain.Position, error) {
	e, err := s.entry(p.TripID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("append position to %s: %w", p.TripID, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if i, ok := e.index[p.PositionID]; ok {
		return e.chain[i], nil
	}
	if e.trip.IsCompleted {
		return domain.Position{}, fmt.Errorf("append position to %s: %w", p.TripID, domain.ErrTripCompleted)
	}
	p.Timestamp = p.Timestamp.UTC().Truncate(time.Millisecond)
	if n := len(e.chain); n > 0 {
		if tail := e.chain[n-1].Timestamp; !p.Timestamp.After(tail) {
			p.Timestamp = tail.Add(time.Millisecond)
		}
	}
	e.index[p.PositionID] = len(e.chain)
	e.chain = append(e.chain, p)
	return p, nil
}

// CompleteTrip stops a trip. The trip and its vehicle's totals change
// together or not at all.
func (s *Store) CompleteTrip(_ context.Context, tripID string, finish func(domain.TripEndpoints) (domain.Completion, error)) (domain.Trip, error) {
	e, err := s.entry(tripID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("complete trip %s: %w", tripID, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trip.IsCompleted {
		return domain.Trip{}, fmt.Errorf("complete trip %s: %w", tripID, domain.ErrTripCompleted)
	}
	if len(e.chain) == 0 {
		return domain.Trip{}, fmt.Errorf("complete trip %s: %w: no recorded positions", tripID, domain.ErrTripNotFound)
	}
	c, err := finish(domain.TripEndpoints{Trip: e.trip, First: e.chain[0], Tail: e.chain[len(e.chain)-1]})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("complete trip %s: %w", tripID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[e.trip.VehicleID]
	if !ok {
		return domain.Trip{}, fmt.Errorf("complete trip %s: %w: vehicle %q not found",
			tripID, domain.ErrAggregateUpdateFailed, e.trip.VehicleID)
	}
	end := c.EndTime.UTC().Truncate(time.Millisecond)
	e.trip.EndTime = &end
	e.trip.Length = c.Length
	e.trip.Duration = c.Duration
	e.trip.IsCompleted = true
	v.TotalTripLength += c.Length
	v.TotalTripDuration += c.Duration
	return e.trip, nil
}

// GetTrip returns a trip by id.
func (s *Store) GetTrip(_ context.Context, tripID string) (domain.Trip, error) {
	e, err := s.entry(tripID)
	if err != nil {
		return domain.Trip{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trip, nil
}

// ListTrips returns the trips of clientID's vehicles, newest first. A
// non-empty licensePlate restricts the list to that vehicle.
func (s *Store) ListTrips(_ context.Context, clientID, licensePlate string) ([]domain.Trip, error) {
	s.mu.RLock()
	if _, ok := s.clients[clientID]; !ok {
		s.mu.RUnlock()
		return nil, domain.ErrClientNotFound
	}
	var entries []*tripEntry
	for _, e := range s.trips {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := []domain.Trip{}
	for _, e := range entries {
		e.mu.Lock()
		t := e.trip
		e.mu.Unlock()
		if t.ClientID != clientID || (licensePlate != "" && t.VehicleID != licensePlate) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].TripID < out[j].TripID
	})
	return out, nil
}

// TripPositions returns a copy of the trip's chain in order.
func (s *Store) TripPositions(_ context.Context, tripID string) ([]domain.Position, error) {
	e, err := s.entry(tripID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Position{}, e.chain...), nil
}
