package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitfield/tryon-backend/pkg/db/models"
	"github.com/fitfield/tryon-backend/pkg/enums"
)

type fakeRepository struct {
	byUser map[uuid.UUID]*models.Subscription
	err    error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{byUser: make(map[uuid.UUID]*models.Subscription)}
}

func (f *fakeRepository) WithTx(_ *gorm.DB) Repository { return f }

func (f *fakeRepository) FindByUser(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func (f *fakeRepository) Upsert(_ context.Context, sub *models.Subscription) error {
	if f.err != nil {
		return f.err
	}
	f.byUser[sub.UserID] = sub
	return nil
}

func TestServiceStatus(t *testing.T) {
	userID := uuid.New()
	future := time.Now().Add(24 * time.Hour)

	repo := newFakeRepository()
	repo.byUser[userID] = &models.Subscription{
		UserID:    userID,
		Status:    enums.SubscriptionStatusSubscribed,
		ExpiresAt: &future,
	}

	svc, err := NewService(repo)
	require.NoError(t, err)

	entitlement, err := svc.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, StateSubscribed, entitlement.State)
	assert.True(t, entitlement.IsUnlimited)

	entitlement, err = svc.Status(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StateNoSubscription, entitlement.State)
	assert.False(t, entitlement.RendersAllowed)
}

func TestServiceIsUnlimited(t *testing.T) {
	userID := uuid.New()
	past := time.Now().Add(-time.Hour)

	repo := newFakeRepository()
	repo.byUser[userID] = &models.Subscription{
		UserID:    userID,
		Status:    enums.SubscriptionStatusSubscribed,
		ExpiresAt: &past,
	}

	svc, err := NewService(repo)
	require.NoError(t, err)

	unlimited, err := svc.IsUnlimited(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, unlimited)
}

func TestServiceRejectsNilUser(t *testing.T) {
	svc, err := NewService(newFakeRepository())
	require.NoError(t, err)

	_, err = svc.Status(context.Background(), uuid.Nil)
	assert.Error(t, err)
}
