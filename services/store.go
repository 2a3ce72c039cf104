package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"studio-booking/errors"
	"studio-booking/models"
)

// Store is the durable home of the verification ledger.
type Store interface {
	Insert(ctx context.Context, v *models.PaymentVerification) error
	Get(ctx context.Context, id string) (*models.PaymentVerification, error)
	// List returns every claim, newest CreatedAt first.
	List(ctx context.Context) ([]*models.PaymentVerification, error)
	// ListPending returns pending claims created strictly after since, oldest first.
	ListPending(ctx context.Context, since time.Time) ([]*models.PaymentVerification, error)
	// MarkVerified moves a pending claim to verified. It reports false when the
	// claim was not pending anymore.
	MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)
	// PendingConfirmationExists reports whether a pending claim created after
	// since already uses number.
	PendingConfirmationExists(ctx context.Context, number string, since time.Time) (bool, error)
	Ping(ctx context.Context) error
}

// MemoryStore keeps the ledger in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*models.PaymentVerification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*models.PaymentVerification)}
}

func (s *MemoryStore) Insert(_ context.Context, v *models.PaymentVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[v.ID]; exists {
		return errors.NewConflictError("verification already exists: " + v.ID)
	}
	s.items[v.ID] = clone(v)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.PaymentVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("verification not found: " + id)
	}
	return clone(v), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.PaymentVerification, error) {
	s.mu.RLock()
	out := make([]*models.PaymentVerification, 0, len(s.items))
	for _, v := range s.items {
		out = append(out, clone(v))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListPending(_ context.Context, since time.Time) ([]*models.PaymentVerification, error) {
	s.mu.RLock()
	var out []*models.PaymentVerification
	for _, v := range s.items {
		if v.Status == models.StatusPending && v.CreatedAt.After(since) {
			out = append(out, clone(v))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkVerified(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[id]
	if !ok {
		return false, errors.NewNotFoundError("verification not found: " + id)
	}
	if v.Status != models.StatusPending {
		return false, nil
	}
	v.Status = models.StatusVerified
	v.VerifiedAt = &at
	return true, nil
}

func (s *MemoryStore) PendingConfirmationExists(_ context.Context, number string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.items {
		if v.Status == models.StatusPending && v.ConfirmationNumber == number && v.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func clone(v *models.PaymentVerification) *models.PaymentVerification {
	c := *v
	if v.VerifiedAt != nil {
		at := *v.VerifiedAt
		c.VerifiedAt = &at
	}
	if v.ClassDetails != nil {
		cd := *v.ClassDetails
		c.ClassDetails = &cd
	}
	if v.PackageDetails != nil {
		pd := *v.PackageDetails
		c.PackageDetails = &pd
	}
	return &c
}
