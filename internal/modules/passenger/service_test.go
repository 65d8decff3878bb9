package passenger

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxidispatch/internal/types"
)

type memStore struct {
	mu         sync.Mutex
	passengers []Passenger
	creates    int
}

func (m *memStore) Create(_ context.Context, p *Passenger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	for _, existing := range m.passengers {
		if existing.Email == p.Email {
			return ErrEmailTaken
		}
	}
	m.passengers = append(m.passengers, *p)
	return nil
}

func (m *memStore) FindByID(_ context.Context, id types.ID) (*Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.passengers {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.passengers {
		if p.Email == email {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) List(_ context.Context) ([]Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Passenger(nil), m.passengers...), nil
}

func newTestService() (*Service, *memStore) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := &memStore{}
	return NewService(store, log), store
}

func TestRegister_NormalisesEmail(t *testing.T) {
	svc, _ := newTestService()

	p, err := svc.Register(context.Background(), RegisterCommand{
		Name: "Carlos González", Email: "  Carlos@Example.COM ", Phone: "+1234567890",
	})
	require.NoError(t, err)
	assert.Equal(t, "carlos@example.com", p.Email)
	assert.Equal(t, "+1234567890", p.Phone)
	assert.True(t, types.ValidID(string(p.ID)))
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterCommand{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterCommand{Name: "Ana Silva", Email: "ANA@example.com"})
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Equal(t, 1, store.creates, "duplicate must be rejected before insert")
}

func TestRegister_InvalidInput(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterCommand{Name: "", Email: "x@example.com"})
	assert.ErrorIs(t, err, types.ErrBadRequest)

	_, err = svc.Register(ctx, RegisterCommand{Name: "X", Email: "not-an-email"})
	assert.ErrorIs(t, err, types.ErrBadRequest)
}

func TestGet(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterCommand{Name: "Luis", Email: "luis@example.com"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Luis", got.Name)

	_, err = svc.Get(ctx, types.NewID())
	assert.ErrorIs(t, err, types.ErrNotFound)
}
