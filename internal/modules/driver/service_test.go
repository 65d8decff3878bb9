package driver

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxidispatch/internal/types"
)

// memStore is an in-memory Repository for service tests.
type memStore struct {
	mu      sync.Mutex
	drivers []Driver
}

func (m *memStore) Create(_ context.Context, d *Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.drivers {
		if existing.License == d.License {
			return ErrLicenseTaken
		}
	}
	m.drivers = append(m.drivers, *d)
	return nil
}

func (m *memStore) FindByID(_ context.Context, id types.ID) (*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drivers {
		if d.ID == id {
			cp := d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindAvailable(_ context.Context) ([]Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Driver
	for _, d := range m.drivers {
		if d.Available {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) List(_ context.Context) ([]Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Driver(nil), m.drivers...), nil
}

func newTestService() (*Service, *memStore) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := &memStore{}
	return NewService(store, log), store
}

func TestRegister_Defaults(t *testing.T) {
	svc, _ := newTestService()

	d, err := svc.Register(context.Background(), RegisterCommand{
		Name:      " Juan Pérez ",
		License:   " LIC-001 ",
		Latitude:  18.473147,
		Longitude: -69.912835,
	})
	require.NoError(t, err)

	assert.True(t, types.ValidID(string(d.ID)))
	assert.Equal(t, "Juan Pérez", d.Name)
	assert.Equal(t, "LIC-001", d.License)
	assert.True(t, d.Available)
	assert.Len(t, d.Geohash, 7)
	assert.False(t, d.CreatedAt.IsZero())
}

func TestRegister_ExplicitlyUnavailable(t *testing.T) {
	svc, _ := newTestService()
	off := false

	d, err := svc.Register(context.Background(), RegisterCommand{
		Name: "Ana", License: "LIC-004", Latitude: 18.44, Longitude: -69.91, Available: &off,
	})
	require.NoError(t, err)
	assert.False(t, d.Available)

	avail, err := svc.ListAvailable(context.Background())
	require.NoError(t, err)
	assert.Empty(t, avail)
}

func TestRegister_DuplicateLicense(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterCommand{Name: "A", License: "LIC-001", Latitude: 1, Longitude: 1})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterCommand{Name: "B", License: "LIC-001", Latitude: 2, Longitude: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConflict))
	assert.Equal(t, "license already registered", err.Error())
}

func TestRegister_InvalidInput(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []RegisterCommand{
		{Name: "", License: "L", Latitude: 0, Longitude: 0},
		{Name: "N", License: "  ", Latitude: 0, Longitude: 0},
		{Name: "N", License: "L", Latitude: 91, Longitude: 0},
		{Name: "N", License: "L", Latitude: 0, Longitude: -181},
	}
	for _, cmd := range cases {
		_, err := svc.Register(ctx, cmd)
		assert.ErrorIs(t, err, types.ErrBadRequest, "cmd %+v", cmd)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Get(context.Background(), types.NewID())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestList_ReturnsAll(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for _, lic := range []string{"LIC-002", "LIC-001", "LIC-003"} {
		_, err := svc.Register(ctx, RegisterCommand{Name: "D", License: lic, Latitude: 18, Longitude: -69})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx)
	require.NoError(t, err)
	licenses := make([]string, 0, len(all))
	for _, d := range all {
		licenses = append(licenses, d.License)
	}
	sort.Strings(licenses)
	assert.Equal(t, []string{"LIC-001", "LIC-002", "LIC-003"}, licenses)
}
