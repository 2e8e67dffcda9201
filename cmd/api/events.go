package main

import (
	"context"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/pkg/natsutil"
)

// eventSubjectPrefix is the NATS subject root for lifecycle events; each
// event goes to eventSubjectPrefix + "." + kind.
const eventSubjectPrefix = "trips"

func eventSubject(kind domain.EventKind) string {
	return eventSubjectPrefix + "." + string(kind)
}

// natsEvents publishes lifecycle events to NATS.
type natsEvents struct {
	nc natsutil.MsgPublisher
}

func (e *natsEvents) Publish(ctx context.Context, ev domain.TripEvent) error {
	return natsutil.Publish(ctx, e.nc, eventSubject(ev.Kind), ev)
}
