// Package trip implements the trip lifecycle: starting a trip on a vehicle,
// appending GPS positions to its chain and stopping it, which computes the
// trip's length and duration and folds them into the vehicle totals.
//
// The Manager holds no per-trip state. Serialization of appends and
// completion on one trip is the store's job; the Manager adds validation,
// one retry on transient store failures, a circuit breaker, metrics, spans
// and post-commit events.
package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/engine/geo"
	"github.com/WessleyAI/wessley-trips/engine/ident"
	"github.com/WessleyAI/wessley-trips/pkg/fn"
	"github.com/WessleyAI/wessley-trips/pkg/resilience"
)

// Store is the persistence the lifecycle needs. AppendPosition and
// CompleteTrip must each be atomic and serialized per trip.
type Store interface {
	CreateTrip(ctx context.Context, t domain.Trip) (domain.Trip, error)
	AppendPosition(ctx context.Context, p domain.Position) (domain.Position, error)
	CompleteTrip(ctx context.Context, tripID string, finish func(domain.TripEndpoints) (domain.Completion, error)) (domain.Trip, error)
	GetTrip(ctx context.Context, tripID string) (domain.Trip, error)
	ListTrips(ctx context.Context, clientID, licensePlate string) ([]domain.Trip, error)
	TripPositions(ctx context.Context, tripID string) ([]domain.Position, error)
}

// EventPublisher receives lifecycle events after they are committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.TripEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.TripEvent) error { return nil }

// Options configures the Manager.
type Options struct {
	// Retry applies to store calls. Only transient failures are retried.
	Retry fn.RetryOpts
	// Breaker guards the store. Only outages count as failures.
	Breaker resilience.BreakerOpts
	// Registerer receives the lifecycle metrics. Nil skips registration.
	Registerer prometheus.Registerer
	// IDs allocates trip ids.
	IDs *ident.Allocator
	// Now is the wall clock.
	Now func() time.Time
	// NewPositionID returns a fresh position id.
	NewPositionID func() string
}

// DefaultOptions returns production defaults: one retry, a breaker that
// opens after five consecutive outages and uuid position ids.
func DefaultOptions() Options {
	return Options{
		Retry: fn.RetryOpts{
			MaxAttempts: 2,
			InitialWait: 50 * time.Millisecond,
			MaxWait:     time.Second,
			Jitter:      true,
			Retryable:   domain.IsTransient,
		},
		Breaker: resilience.BreakerOpts{
			FailThreshold: 5,
			Timeout:       10 * time.Second,
			HalfOpenMax:   1,
			IsFailure:     domain.IsTransient,
		},
		IDs:           &ident.Allocator{},
		Now:           time.Now,
		NewPositionID: uuid.NewString,
	}
}

// Manager orchestrates trip lifecycle transitions.
type Manager struct {
	store   Store
	events  EventPublisher
	retry   fn.RetryOpts
	breaker *resilience.Breaker
	ids     *ident.Allocator
	now     func() time.Time
	newPos  func() string
	metrics *metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates a Manager. events may be nil.
func New(store Store, events EventPublisher, opts Options, logger *slog.Logger) *Manager {
	def := DefaultOptions()
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = def.Retry
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = domain.IsTransient
	}
	if opts.Breaker.IsFailure == nil {
		opts.Breaker.IsFailure = domain.IsTransient
	}
	if opts.IDs == nil {
		opts.IDs = def.IDs
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if opts.NewPositionID == nil {
		opts.NewPositionID = def.NewPositionID
	}
	if events == nil {
		events = nopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := newMetrics(reg)
	opts.Breaker.OnStateChange = m.onBreakerChange

	return &Manager{
		store:   store,
		events:  events,
		retry:   opts.Retry,
		breaker: resilience.NewBreaker(opts.Breaker),
		ids:     opts.IDs,
		now:     opts.Now,
		newPos:  opts.NewPositionID,
		metrics: m,
		tracer:  otel.Tracer("github.com/WessleyAI/wessley-trips/engine/trip"),
		logger:  logger,
	}
}

// StartTrip opens a trip on the vehicle with licensePlate. A trip id
// collision is resolved by drawing a new id once.
func (m *Manager) StartTrip(ctx context.Context, licensePlate string) (domain.TripStart, error) {
	licensePlate = strings.TrimSpace(licensePlate)
	ctx, span := m.tracer.Start(ctx, "trip.Start", trace.WithAttributes(attribute.String("vehicle.plate", licensePlate)))
	defer span.End()

	if err := domain.RequireField("licensePlate", licensePlate); err != nil {
		return domain.TripStart{}, m.fail(span, "start", err)
	}

	start := m.now().UTC().Truncate(time.Millisecond)
	var (
		t   domain.Trip
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		id := m.ids.TripID(licensePlate, start)
		t, err = call(ctx, m, "start", func(ctx context.Context) (domain.Trip, error) {
			return m.store.CreateTrip(ctx, domain.Trip{TripID: id, VehicleID: licensePlate, StartTime: start})
		})
		if !errors.Is(err, domain.ErrDuplicateID) {
			break
		}
		m.logger.Warn("trip id collision, drawing a new id", "trip_id", id)
	}
	if err != nil {
		return domain.TripStart{}, m.fail(span, "start", err)
	}

	span.SetAttributes(attribute.String("trip.id", t.TripID))
	m.logger.Info("trip started", "trip_id", t.TripID, "client_id", t.ClientID, "license_plate", licensePlate)
	m.publish(ctx, domain.TripEvent{Kind: domain.EventTripStarted, Trip: t, At: t.StartTime})
	return domain.TripStart{ClientID: t.ClientID, TripID: t.TripID, StartTime: t.StartTime}, nil
}

// RecordPosition appends a GPS fix to the end of an active trip's chain. The
// stored timestamp is the wall clock, nudged forward if needed so the chain
// stays strictly time-ordered.
func (m *Manager) RecordPosition(ctx context.Context, tripID string, lat, lon float64) (domain.Position, error) {
	tripID = strings.TrimSpace(tripID)
	ctx, span := m.tracer.Start(ctx, "trip.RecordPosition", trace.WithAttributes(attribute.String("trip.id", tripID)))
	defer span.End()

	if err := domain.RequireField("tripId", tripID); err != nil {
		return domain.Position{}, m.fail(span, "record_position", err)
	}
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		return domain.Position{}, m.fail(span, "record_position", err)
	}

	// The id is fixed across retries so a write that committed before its
	// acknowledgement was lost returns the stored position instead of
	// appending a duplicate.
	p := domain.Position{
		PositionID: m.newPos(),
		TripID:     tripID,
		Latitude:   lat,
		Longitude:  lon,
		Timestamp:  m.now().UTC(),
	}
	stored, err := call(ctx, m, "record_position", func(ctx context.Context) (domain.Position, error) {
		return m.store.AppendPosition(ctx, p)
	})
	if err != nil {
		return domain.Position{}, m.fail(span, "record_position", err)
	}

	m.metrics.positions.Inc()
	m.logger.Debug("position recorded", "trip_id", tripID, "position_id", stored.PositionID)
	m.publish(ctx, domain.TripEvent{
		Kind:     domain.EventPositionAdded,
		Trip:     domain.Trip{TripID: tripID},
		Position: &stored,
		At:       stored.Timestamp,
	})
	return stored, nil
}

// StopTrip completes a trip. Length is the straight-line distance between
// the first and last recorded positions; duration runs from the trip's start
// to now. A trip can be stopped once; later calls fail with
// domain.ErrTripCompleted and leave the vehicle totals untouched.
func (m *Manager) StopTrip(ctx context.Context, tripID string) (domain.Trip, error) {
	tripID = strings.TrimSpace(tripID)
	ctx, span := m.tracer.Start(ctx, "trip.Stop", trace.WithAttributes(attribute.String("trip.id", tripID)))
	defer span.End()

	if err := domain.RequireField("tripId", tripID); err != nil {
		return domain.Trip{}, m.fail(span, "stop", err)
	}

	finish := func(ep domain.TripEndpoints) (domain.Completion, error) {
		end := m.now().UTC()
		return domain.Completion{
			EndTime:  end,
			Length:   geo.HaversineKm(ep.First.Latitude, ep.First.Longitude, ep.Tail.Latitude, ep.Tail.Longitude),
			Duration: max(geo.DurationHours(ep.Trip.StartTime, end), 0),
		}, nil
	}
	t, err := call(ctx, m, "stop", func(ctx context.Context) (domain.Trip, error) {
		return m.store.CompleteTrip(ctx, tripID, finish)
	})
	if err != nil {
		return domain.Trip{}, m.fail(span, "stop", err)
	}

	m.metrics.completed.Inc()
	m.metrics.tripLength.Observe(t.Length)
	span.SetAttributes(attribute.Float64("trip.length_km", t.Length))
	m.logger.Info("trip completed", "trip_id", t.TripID, "length_km", t.Length, "duration_h", t.Duration)
	at := m.now().UTC()
	if t.EndTime != nil {
		at = *t.EndTime
	}
	m.publish(ctx, domain.TripEvent{Kind: domain.EventTripCompleted, Trip: t, At: at})
	return t, nil
}

// GetTrip returns a trip by id.
func (m *Manager) GetTrip(ctx context.Context, tripID string) (domain.Trip, error) {
	tripID = strings.TrimSpace(tripID)
	if err := domain.RequireField("tripId", tripID); err != nil {
		return domain.Trip{}, err
	}
	return call(ctx, m, "get", func(ctx context.Context) (domain.Trip, error) {
		return m.store.GetTrip(ctx, tripID)
	})
}

// ListTrips returns clientID's trips, newest first, optionally restricted to
// one vehicle.
func (m *Manager) ListTrips(ctx context.Context, clientID, licensePlate string) ([]domain.Trip, error) {
	clientID = strings.TrimSpace(clientID)
	licensePlate = strings.TrimSpace(licensePlate)
	if err := domain.RequireField("clientId", clientID); err != nil {
		return nil, err
	}
	return call(ctx, m, "list", func(ctx context.Context) ([]domain.Trip, error) {
		return m.store.ListTrips(ctx, clientID, licensePlate)
	})
}

// TripPositions returns a trip's chain from first to last position.
func (m *Manager) TripPositions(ctx context.Context, tripID string) ([]domain.Position, error) {
	tripID = strings.TrimSpace(tripID)
	if err := domain.RequireField("tripId", tripID); err != nil {
		return nil, err
	}
	return call(ctx, m, "positions", func(ctx context.Context) ([]domain.Position, error) {
		return m.store.TripPositions(ctx, tripID)
	})
}

// call runs a store operation through the retry policy and the breaker and
// records its outcome. An open breaker surfaces as domain.ErrStoreUnavailable.
func call[T any](ctx context.Context, m *Manager, op string, f func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn.Do(ctx, m.retry, func(ctx context.Context) (T, error) {
		return resilience.CallResult(m.breaker, ctx, func(ctx context.Context) fn.Result[T] {
			return fn.FromPair(f(ctx))
		}).Unwrap()
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = domain.Unavailable(err)
	}
	m.metrics.ops.WithLabelValues(op, domain.KindOf(err)).Inc()
	m.metrics.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return v, err
}

// fail records err on the span and logs unexpected failures.
func (m *Manager) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, domain.KindOf(err))
	switch {
	case errors.Is(err, domain.ErrValidation):
		m.metrics.ops.WithLabelValues(op, domain.KindOf(err)).Inc()
	case errors.Is(err, domain.ErrAggregateUpdateFailed), errors.Is(err, domain.ErrStoreUnavailable):
		m.logger.Error("trip operation failed", "op", op, "error", err)
	}
	return fmt.Errorf("trip: %s: %w", op, err)
}

// publish emits ev. Failures are logged and counted; the transition has
// already been committed.
func (m *Manager) publish(ctx context.Context, ev domain.TripEvent) {
	if err := m.events.Publish(ctx, ev); err != nil {
		m.metrics.publishFails.WithLabelValues(string(ev.Kind)).Inc()
		m.logger.Warn("publish trip event", "kind", ev.Kind, "trip_id", ev.Trip.TripID, "error", err)
	}
}
