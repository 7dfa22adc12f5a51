package credits

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fitfield/tryon-backend/pkg/db/models"
)

type fakeRepository struct {
	balance   *models.CreditBalance
	grantErr  error
	consumeOK bool
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	return f.balance, nil
}

func (f *fakeRepository) GrantInitial(ctx context.Context, userID uuid.UUID, amount int) (bool, error) {
	if f.grantErr != nil {
		return false, f.grantErr
	}
	if f.balance != nil {
		return false, nil
	}
	f.balance = &models.CreditBalance{UserID: userID, TotalGranted: amount}
	return true, nil
}

func (f *fakeRepository) ConsumeOne(ctx context.Context, userID uuid.UUID) (bool, error) {
	if !f.consumeOK {
		return false, nil
	}
	f.balance.TotalConsumed++
	return true, nil
}

func (f *fakeRepository) RefundOne(ctx context.Context, userID uuid.UUID) (bool, error) {
	if f.balance == nil || f.balance.TotalConsumed == 0 {
		return false, nil
	}
	f.balance.TotalConsumed--
	return true, nil
}

func TestService_GrantReturnsBalance(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo, 3)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	balance, err := svc.Grant(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if balance.TotalGranted != 3 || balance.Remaining != 3 {
		t.Fatalf("unexpected balance %+v", balance)
	}
}

func TestService_CurrentMissingRowIsZero(t *testing.T) {
	svc, err := NewService(&fakeRepository{}, 3)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	balance, err := svc.Current(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if balance.TotalGranted != 0 || balance.Remaining != 0 {
		t.Fatalf("expected zero balance, got %+v", balance)
	}
}

func TestService_ConsumeReportsFailureWithoutError(t *testing.T) {
	repo := &fakeRepository{
		balance:   &models.CreditBalance{TotalGranted: 1, TotalConsumed: 1},
		consumeOK: false,
	}
	svc, err := NewService(repo, 1)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	result, err := svc.Consume(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.Success {
		t.Fatal("expected consume at cap to report failure")
	}
	if result.Remaining != 0 {
		t.Fatalf("expected zero remaining, got %d", result.Remaining)
	}
	if repo.balance.TotalConsumed != 1 {
		t.Fatalf("expected counters untouched, got %d", repo.balance.TotalConsumed)
	}
}

func TestService_GrantDependencyError(t *testing.T) {
	repo := &fakeRepository{grantErr: errors.New("db down")}
	svc, err := NewService(repo, 3)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	if _, err := svc.Grant(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected dependency error to surface")
	}
}

func TestService_ValidatesUserID(t *testing.T) {
	svc, err := NewService(&fakeRepository{}, 3)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	if _, err := svc.Grant(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected grant with nil user id to fail")
	}
	if _, err := svc.Consume(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected consume with nil user id to fail")
	}
}
