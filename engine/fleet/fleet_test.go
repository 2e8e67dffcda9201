package fleet_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/engine/fleet"
	"github.com/WessleyAI/wessley-trips/engine/memstore"
)

var ctx = context.Background()

func ada() domain.ClientInput {
	return domain.ClientInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", BirthDate: "1815-12-10"}
}

func civic() domain.VehicleInput {
	return domain.VehicleInput{Model: "Civic", Manufacturer: "Honda", LicensePlate: "AAA111", VIN: "1HGCM82633A004352", ManufactureYear: 2019}
}

func TestRegisterClient(t *testing.T) {
	svc := fleet.New(memstore.New(), nil)

	in := ada()
	in.FirstName = "  Ada "
	c, err := svc.RegisterClient(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "AdaLov1", c.ClientID)
	assert.Equal(t, "Ada", c.FirstName, "names are trimmed")

	other := ada()
	other.Email = "ada2@example.com"
	c2, err := svc.RegisterClient(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "AdaLov2", c2.ClientID, "sequence increases")

	_, err = svc.RegisterClient(ctx, ada())
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegisterClient_Validation(t *testing.T) {
	svc := fleet.New(memstore.New(), nil)
	in := ada()
	in.Email = "   "
	_, err := svc.RegisterClient(ctx, in)
	require.ErrorIs(t, err, domain.ErrValidation)

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "email", ve.Field)
}

func TestRegisterClient_ConcurrentSameEmail(t *testing.T) {
	svc := fleet.New(memstore.New(), nil)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RegisterClient(ctx, ada())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)

	clients, err := svc.FindClients(ctx, "", "ada@example.com")
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestFindClients(t *testing.T) {
	svc := fleet.New(memstore.New(), nil)
	for i := 0; i < 3; i++ {
		in := ada()
		in.Email = fmt.Sprintf("ada%d@example.com", i)
		_, err := svc.RegisterClient(ctx, in)
		require.NoError(t, err)
	}

	all, err := svc.FindClients(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byID, err := svc.FindClients(ctx, "AdaLov2", "")
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "ada1@example.com", byID[0].Email)

	none, err := svc.FindClients(ctx, "AdaLov2", "ada0@example.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRegisterVehicle(t *testing.T) {
	svc := fleet.New(memstore.New(), nil)
	c, err := svc.RegisterClient(ctx, ada())
	require.NoError(t, err)

	v, err := svc.RegisterVehicle(ctx, c.ClientID, civic())
	require.NoError(t, err)
	assert.Equal(t, c.ClientID, v.OwnerID)
	assert.Zero(t, v.TotalTripLength)

	_, err = svc.RegisterVehicle(ctx, c.ClientID, civic())
	require.ErrorIs(t, err, domain.ErrVehicleTaken)

	_, err = svc.RegisterVehicle(ctx, "Nobody1", domain.VehicleInput{Model: "X", Manufacturer: "Y", LicensePlate: "ZZZ999", VIN: "V", ManufactureYear: 2000})
	require.ErrorIs(t, err, domain.ErrClientNotFound)

	bad := civic()
	bad.ManufactureYear = 0
	_, err = svc.RegisterVehicle(ctx, c.ClientID, bad)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.RegisterVehicle(ctx, "", civic())
	require.ErrorIs(t, err, domain.ErrValidation)

	vs, err := svc.ListVehicles(ctx, c.ClientID)
	require.NoError(t, err)
	require.Len(t, vs, 1)

	got, err := svc.GetVehicle(ctx, "AAA111")
	require.NoError(t, err)
	assert.Equal(t, "Civic", got.Model)
}

func TestExists(t *testing.T) {
	svc := fleet.New(memstore.New(), nil)
	c, err := svc.RegisterClient(ctx, ada())
	require.NoError(t, err)
	_, err = svc.RegisterVehicle(ctx, c.ClientID, civic())
	require.NoError(t, err)

	ok, err := svc.ClientExists(ctx, c.ClientID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.ClientExists(ctx, " "+c.ClientID+" ")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.ClientExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookups_TrimIdentifiers(t *testing.T) {
	svc := fleet.New(memstore.New(), nil)
	c, err := svc.RegisterClient(ctx, ada())
	require.NoError(t, err)
	_, err = svc.RegisterVehicle(ctx, " "+c.ClientID+"\t", civic())
	require.NoError(t, err)

	got, err := svc.GetClient(ctx, " "+c.ClientID)
	require.NoError(t, err)
	assert.Equal(t, c.ClientID, got.ClientID)

	vs, err := svc.ListVehicles(ctx, c.ClientID+" ")
	require.NoError(t, err)
	assert.Len(t, vs, 1)

	v, err := svc.GetVehicle(ctx, " AAA111 ")
	require.NoError(t, err)
	assert.Equal(t, "AAA111", v.LicensePlate)

	found, err := svc.FindClients(ctx, " "+c.ClientID+" ", "")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

type downStore struct{ fleet.Store }

func (downStore) GetClient(context.Context, string) (domain.Client, error) {
	return domain.Client{}, domain.Unavailable(errors.New("connection refused"))
}

func TestClientExists_PropagatesOutage(t *testing.T) {
	svc := fleet.New(downStore{memstore.New()}, nil)
	_, err := svc.ClientExists(ctx, "AdaLov1")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestReset(t *testing.T) {
	store := memstore.New()
	svc := fleet.New(store, nil)
	_, err := svc.RegisterClient(ctx, ada())
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx))
	all, err := svc.FindClients(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, all)
}
