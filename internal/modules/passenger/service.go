// README: Passenger registry.
package passenger

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"taxidispatch/internal/types"
)

type Repository interface {
	Create(ctx context.Context, p *Passenger) error
	FindByID(ctx context.Context, id types.ID) (*Passenger, error)
	FindByEmail(ctx context.Context, email string) (*Passenger, error)
	List(ctx context.Context) ([]Passenger, error)
}

type Service struct {
	store Repository
	log   logrus.FieldLogger
}

func NewService(store Repository, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log}
}

type RegisterCommand struct {
	Name  string
	Email string
	Phone string
}

// NormalizeEmail is the canonical form used for uniqueness.
func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Passenger, error) {
	name := strings.TrimSpace(cmd.Name)
	email := NormalizeEmail(cmd.Email)
	if name == "" || email == "" {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, types.BadRequest("invalid email address")
	}

	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	now := time.Now().UTC()
	p := &Passenger{
		ID:        types.NewID(),
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(cmd.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	// A concurrent registration can still win the race; the store maps the
	// unique-index violation to ErrEmailTaken.
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.WithField("passenger_id", p.ID).Info("passenger registered")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Passenger, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Passenger, error) {
	return s.store.List(ctx)
}
