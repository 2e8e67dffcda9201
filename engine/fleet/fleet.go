// Package fleet registers clients and their vehicles and answers ownership
// lookups for the trip lifecycle.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/engine/ident"
)

// Store is the persistence the registration service needs. Both the graph
// store and the in-memory store satisfy it.
type Store interface {
	CreateClient(ctx context.Context, in domain.ClientInput, idFor func(seq int64) string) (domain.Client, error)
	GetClient(ctx context.Context, clientID string) (domain.Client, error)
	ListClients(ctx context.Context, f domain.ClientFilter) ([]domain.Client, error)
	CreateVehicle(ctx context.Context, clientID string, in domain.VehicleInput) (domain.Vehicle, error)
	GetVehicle(ctx context.Context, licensePlate string) (domain.Vehicle, error)
	ListVehicles(ctx context.Context, clientID string) ([]domain.Vehicle, error)
	Reset(ctx context.Context) error
}

// Service handles client and vehicle registration.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New creates a registration Service.
func New(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// RegisterClient validates in and stores a new client. The client id is
// derived from the names and the store's client sequence.
func (s *Service) RegisterClient(ctx context.Context, in domain.ClientInput) (domain.Client, error) {
	in = in.Normalize()
	if err := domain.ValidateClient(in); err != nil {
		return domain.Client{}, err
	}
	c, err := s.store.CreateClient(ctx, in, func(seq int64) string {
		return ident.ClientID(in.FirstName, in.LastName, seq)
	})
	if err != nil {
		return domain.Client{}, fmt.Errorf("fleet: register client: %w", err)
	}
	s.logger.Info("client registered", "client_id", c.ClientID)
	return c, nil
}

// GetClient returns a client by id.
func (s *Service) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	clientID = strings.TrimSpace(clientID)
	if err := domain.RequireField("clientId", clientID); err != nil {
		return domain.Client{}, err
	}
	return s.store.GetClient(ctx, clientID)
}

// FindClients returns the clients matching the given id and email. Empty
// arguments are ignored; both empty lists every client.
func (s *Service) FindClients(ctx context.Context, clientID, email string) ([]domain.Client, error) {
	return s.store.ListClients(ctx, domain.ClientFilter{
		ClientID: strings.TrimSpace(clientID),
		Email:    strings.TrimSpace(email),
	})
}

// RegisterVehicle validates in and stores a vehicle owned by clientID.
func (s *Service) RegisterVehicle(ctx context.Context, clientID string, in domain.VehicleInput) (domain.Vehicle, error) {
	clientID = strings.TrimSpace(clientID)
	if err := domain.RequireField("clientId", clientID); err != nil {
		return domain.Vehicle{}, err
	}
	in = in.Normalize()
	if err := domain.ValidateVehicle(in); err != nil {
		return domain.Vehicle{}, err
	}
	v, err := s.store.CreateVehicle(ctx, clientID, in)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("fleet: register vehicle: %w", err)
	}
	s.logger.Info("vehicle registered", "client_id", clientID, "license_plate", v.LicensePlate)
	return v, nil
}

// GetVehicle returns a vehicle with its current trip totals.
func (s *Service) GetVehicle(ctx context.Context, licensePlate string) (domain.Vehicle, error) {
	licensePlate = strings.TrimSpace(licensePlate)
	if err := domain.RequireField("licensePlate", licensePlate); err != nil {
		return domain.Vehicle{}, err
	}
	return s.store.GetVehicle(ctx, licensePlate)
}

// ListVehicles returns the vehicles owned by clientID.
func (s *Service) ListVehicles(ctx context.Context, clientID string) ([]domain.Vehicle, error) {
	clientID = strings.TrimSpace(clientID)
	if err := domain.RequireField("clientId", clientID); err != nil {
		return nil, err
	}
	return s.store.ListVehicles(ctx, clientID)
}

// ClientExists reports whether clientID is registered.
func (s *Service) ClientExists(ctx context.Context, clientID string) (bool, error) {
	_, err := s.GetClient(ctx, clientID)
	return exists(err)
}

func exists(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Reset deletes every client, vehicle, trip and position.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("fleet: reset: %w", err)
	}
	s.logger.Warn("all data deleted")
	return nil
}
