// Package domain defines the client, vehicle, trip and position types shared by
// the trip-tracking engine, together with its error taxonomy and input validation.
package domain

import "time"

// Client is a registered vehicle owner. Immutable after registration.
type Client struct {
	ClientID  string `json:"clientId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	BirthDate string `json:"birthDate"`
}

// Vehicle is owned by exactly one Client. Only the running totals change
// after registration, and only when a trip completes.
type Vehicle struct {
	LicensePlate      string  `json:"licensePlate"`
	VIN               string  `json:"vin"`
	Model             string  `json:"model"`
	Manufacturer      string  `json:"manufacturer"`
	ManufactureYear   int     `json:"manufactureYear"`
	TotalTripLength   float64 `json:"totalTripLength"`   // km
	TotalTripDuration float64 `json:"totalTripDuration"` // hours
	OwnerID           string  `json:"ownerId,omitempty"`
}

// TripState is the lifecycle state of a trip.
type TripState string

const (
	TripNotStarted TripState = "not_started"
	TripActive     TripState = "active"
	TripCompleted  TripState = "completed"
)

// Trip is a single journey of a vehicle. VehicleID is the license plate of
// the vehicle the trip was started on.
type Trip struct {
	TripID      string     `json:"tripId"`
	VehicleID   string     `json:"vehicleId"`
	ClientID    string     `json:"clientId,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Length      float64    `json:"length"`   // km
	Duration    float64    `json:"duration"` // hours
	IsCompleted bool       `json:"isCompleted"`
}

// State reports where the trip is in its lifecycle.
func (t Trip) State() TripState {
	switch {
	case t.TripID == "":
		return TripNotStarted
	case t.IsCompleted:
		return TripCompleted
	default:
		return TripActive
	}
}

// Position is one recorded GPS fix of a trip. Positions are never modified.
type Position struct {
	PositionID string    `json:"positionId"`
	TripID     string    `json:"tripId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
}

// TripEndpoints is what trip completion reads under the trip lock: the trip
// itself, the head of its position chain and the current tail.
type TripEndpoints struct {
	Trip  Trip
	First Position
	Tail  Position
}

// Completion holds the values written exactly once when a trip is stopped.
type Completion struct {
	EndTime  time.Time
	Length   float64
	Duration float64
}

// TripStart is returned when a trip begins.
type TripStart struct {
	ClientID  string    `json:"clientId"`
	TripID    string    `json:"tripId"`
	StartTime time.Time `json:"startTime"`
}

// EventKind names a trip lifecycle event.
type EventKind string

const (
	EventTripStarted   EventKind = "started"
	EventPositionAdded EventKind = "position"
	EventTripCompleted EventKind = "completed"
)

// TripEvent is published after a lifecycle transition has been committed.
type TripEvent struct {
	Kind     EventKind `json:"kind"`
	Trip     Trip      `json:"trip"`
	Position *Position `json:"position,omitempty"`
	At       time.Time `json:"at"`
}

// ClientFilter narrows client lookups. Empty fields match everything.
type ClientFilter struct {
	ClientID string
	Email    string
}
