package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
)

// Service answers entitlement questions for the rest of the app.
type Service interface {
	Status(ctx context.Context, userID uuid.UUID) (*Entitlement, error)
	IsUnlimited(ctx context.Context, userID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a subscriptions service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// Status computes the user's entitlement from the stored subscription row.
func (s *service) Status(ctx context.Context, userID uuid.UUID) (*Entitlement, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	entitlement := ComputeState(sub, s.now())
	return &entitlement, nil
}

// IsUnlimited reports whether renders should bypass the credit ledger.
func (s *service) IsUnlimited(ctx context.Context, userID uuid.UUID) (bool, error) {
	entitlement, err := s.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return entitlement.IsUnlimited, nil
}
