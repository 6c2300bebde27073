package processo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/entity"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/repo"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

// Store is the persistence the service needs; *repo.Repo implements it.
type Store interface {
	List(ctx context.Context, limit, offset int) ([]entity.Processo, error)
	GetByID(ctx context.Context, id int64) (*entity.Processo, error)
	Create(ctx context.Context, p *entity.Processo) error
	Update(ctx context.Context, p *entity.Processo) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

var (
	ErrNotFound        = errors.New("processo not found")
	ErrInvalidProcesso = errors.New("invalid processo")
	ErrDuplicateNumero = errors.New("numero already registered")
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Service holds the processo rules.
type Service struct {
	store  Store
	now    func() time.Time
	nextID func() int64
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }, nextID: utilities.NextID}
}

// List clamps limit into (0, MaxLimit].
func (s *Service) List(ctx context.Context, limit, offset int) ([]entity.Processo, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

func (s *Service) Get(ctx context.Context, id int64) (*entity.Processo, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, in entity.Payload) (*entity.Processo, error) {
	payload, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	p := &entity.Processo{ID: s.nextID(), Payload: payload}
	if err := s.store.Create(ctx, p); err != nil {
		if repo.IsUniqueViolation(err) {
			return nil, ErrDuplicateNumero
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id int64, in entity.Payload) (*entity.Processo, error) {
	payload, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	p := &entity.Processo{ID: id, Payload: payload}
	rows, err := s.store.Update(ctx, p)
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return nil, ErrDuplicateNumero
		}
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	rows, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// validate normalizes in and stamps AtualizadoEm.
func (s *Service) validate(in entity.Payload) (entity.Payload, error) {
	p := in.Normalize()
	if missing := p.MissingFields(); len(missing) > 0 {
		return p, fmt.Errorf("%w: required %s", ErrInvalidProcesso, strings.Join(missing, ", "))
	}
	if !p.Status.Valid() {
		return p, fmt.Errorf("%w: status %q", ErrInvalidProcesso, p.Status)
	}
	if !p.Prioridade.Valid() {
		return p, fmt.Errorf("%w: prioridade %q", ErrInvalidProcesso, p.Prioridade)
	}
	p.AtualizadoEm = s.now()
	return p, nil
}
