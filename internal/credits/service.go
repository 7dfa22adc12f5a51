package credits

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
)

// Balance is the caller-facing view of a user's credit counters.
type Balance struct {
	TotalGranted  int `json:"total_granted"`
	TotalConsumed int `json:"total_consumed"`
	Remaining     int `json:"remaining"`
}

// ConsumeResult reports whether a charge applied and what is left afterwards.
type ConsumeResult struct {
	Success   bool `json:"success"`
	Remaining int  `json:"remaining"`
}

// Service defines the credit ledger operations.
type Service interface {
	Grant(ctx context.Context, userID uuid.UUID) (*Balance, error)
	Current(ctx context.Context, userID uuid.UUID) (*Balance, error)
	Consume(ctx context.Context, userID uuid.UUID) (*ConsumeResult, error)
	Refund(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo        Repository
	signupGrant int
}

// NewService wires a credits service with the provided repository.
func NewService(repo Repository, signupGrant int) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits repository required")
	}
	if signupGrant < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signup grant must be non-negative")
	}
	return &service{repo: repo, signupGrant: signupGrant}, nil
}

// Grant seeds the user's balance. Repeated grants are no-ops by design.
func (s *service) Grant(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if _, err := s.repo.GrantInitial(ctx, userID, s.signupGrant); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant credits")
	}
	return s.Current(ctx, userID)
}

// Current returns the balance, treating a missing row as all-zero.
func (s *service) Current(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	stored, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit balance")
	}
	if stored == nil {
		return &Balance{}, nil
	}
	return &Balance{
		TotalGranted:  stored.TotalGranted,
		TotalConsumed: stored.TotalConsumed,
		Remaining:     stored.Remaining(),
	}, nil
}

// Consume attempts to charge one credit. A balance at its cap reports
// success=false rather than an error so callers can branch on it.
func (s *service) Consume(ctx context.Context, userID uuid.UUID) (*ConsumeResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	consumed, err := s.repo.ConsumeOne(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume credit")
	}
	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ConsumeResult{Success: consumed, Remaining: current.Remaining}, nil
}

// Refund returns one consumed credit; refunding an untouched balance is a no-op.
func (s *service) Refund(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if _, err := s.repo.RefundOne(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund credit")
	}
	return nil
}
