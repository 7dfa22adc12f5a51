package apple

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitfield/tryon-backend/internal/subscriptions"
	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/db/models"
	"github.com/fitfield/tryon-backend/pkg/enums"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

// fakeVerifier returns pre-decoded payloads keyed by the signed string.
type fakeVerifier struct {
	notifications map[string]*Notification
	transactions  map[string]*Transaction
}

func (f *fakeVerifier) VerifyNotification(signedPayload string) (*Notification, error) {
	if n, ok := f.notifications[signedPayload]; ok {
		return n, nil
	}
	return nil, errors.New("bad signature")
}

func (f *fakeVerifier) VerifyTransaction(signedTransaction string) (*Transaction, error) {
	if t, ok := f.transactions[signedTransaction]; ok {
		return t, nil
	}
	return nil, errors.New("bad signature")
}

type fakeSubsRepo struct {
	byUser  map[uuid.UUID]*models.Subscription
	upserts int
}

func newFakeSubsRepo() *fakeSubsRepo {
	return &fakeSubsRepo{byUser: make(map[uuid.UUID]*models.Subscription)}
}

func (f *fakeSubsRepo) WithTx(_ *gorm.DB) subscriptions.Repository { return f }

func (f *fakeSubsRepo) FindByUser(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return f.byUser[userID], nil
}

func (f *fakeSubsRepo) Upsert(_ context.Context, sub *models.Subscription) error {
	f.upserts++
	clone := *sub
	f.byUser[sub.UserID] = &clone
	return nil
}

type fakeDedupe struct {
	seen map[string]bool
}

func (f *fakeDedupe) Get(_ context.Context, _ string) (string, error) { return "", nil }

func (f *fakeDedupe) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeDedupe) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (f *fakeDedupe) Del(_ context.Context, _ ...string) error { return nil }

type appleFixture struct {
	svc      Service
	verifier *fakeVerifier
	repo     *fakeSubsRepo
	userID   uuid.UUID
	now      time.Time
}

func newAppleFixture(t *testing.T) *appleFixture {
	t.Helper()

	verifier := &fakeVerifier{
		notifications: make(map[string]*Notification),
		transactions:  make(map[string]*Transaction),
	}
	repo := newFakeSubsRepo()

	svc, err := NewService(ServiceParams{
		Verifier:      verifier,
		Subscriptions: repo,
		Dedupe:        &fakeDedupe{},
		Logger:        logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		Config: config.AppleConfig{
			BundleID:  "com.fitfield.tryon",
			DedupeTTL: time.Hour,
		},
	})
	require.NoError(t, err)

	now := time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)
	svc.(*service).now = func() time.Time { return now }

	return &appleFixture{
		svc:      svc,
		verifier: verifier,
		repo:     repo,
		userID:   uuid.New(),
		now:      now,
	}
}

func (f *appleFixture) stub(signed string, notification *Notification, transaction *Transaction) {
	if transaction != nil {
		notification.Data.SignedTransactionInfo = "tx-" + signed
		f.verifier.transactions["tx-"+signed] = transaction
	}
	f.verifier.notifications[signed] = notification
}

func (f *appleFixture) transaction(expiresAt time.Time, offerType int) *Transaction {
	var expires int64
	if !expiresAt.IsZero() {
		expires = expiresAt.UnixMilli()
	}
	return &Transaction{
		AppAccountToken:       f.userID.String(),
		TransactionID:         "txn-1",
		OriginalTransactionID: "orig-1",
		ProductID:             "tryon.monthly",
		ExpiresDate:           expires,
		OfferType:             offerType,
	}
}

func TestHandleNotificationRejectsBadSignature(t *testing.T) {
	f := newAppleFixture(t)

	err := f.svc.HandleNotification(context.Background(), "forged")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeUnauthorized, appErr.Code())
	assert.Zero(t, f.repo.upserts)
}

func TestHandleNotificationTestTypeIsAcknowledged(t *testing.T) {
	f := newAppleFixture(t)
	f.stub("signed", &Notification{NotificationType: NotificationTest}, nil)

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
	assert.Zero(t, f.repo.upserts)
}

func TestHandleNotificationInitialBuyWithTrial(t *testing.T) {
	f := newAppleFixture(t)
	expires := f.now.Add(30 * 24 * time.Hour)
	f.stub("signed", &Notification{
		NotificationType: NotificationSubscribed,
		Subtype:          SubtypeInitialBuy,
		NotificationUUID: "n-1",
	}, f.transaction(expires, offerTypeIntroductory))

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))

	sub := f.repo.byUser[f.userID]
	require.NotNil(t, sub)
	assert.Equal(t, enums.SubscriptionStatusTrial, sub.Status)
	assert.Equal(t, expires.UnixMilli(), sub.ExpiresAt.UnixMilli())
	assert.Equal(t, "tryon.monthly", *sub.ProductID)
}

func TestHandleNotificationResubscribeIsNotTrial(t *testing.T) {
	f := newAppleFixture(t)
	f.stub("signed", &Notification{
		NotificationType: NotificationSubscribed,
		Subtype:          SubtypeResubscribe,
		NotificationUUID: "n-2",
	}, f.transaction(f.now.Add(24*time.Hour), offerTypeIntroductory))

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
	assert.Equal(t, enums.SubscriptionStatusSubscribed, f.repo.byUser[f.userID].Status)
}

func TestHandleNotificationMissingExpiryFallsBackSevenDays(t *testing.T) {
	f := newAppleFixture(t)
	f.stub("signed", &Notification{
		NotificationType: NotificationDidRenew,
		NotificationUUID: "n-3",
	}, f.transaction(time.Time{}, 0))

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))

	sub := f.repo.byUser[f.userID]
	require.NotNil(t, sub)
	assert.Equal(t, f.now.Add(7*24*time.Hour).UnixMilli(), sub.ExpiresAt.UnixMilli())
}

func TestHandleNotificationAutoRenewEnabledWithoutRowIsNoOp(t *testing.T) {
	f := newAppleFixture(t)
	f.stub("signed", &Notification{
		NotificationType: NotificationDidChangeRenewalStatus,
		Subtype:          SubtypeAutoRenewEnabled,
		NotificationUUID: "n-4",
	}, f.transaction(f.now.Add(24*time.Hour), 0))

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
	assert.Zero(t, f.repo.upserts)
}

func TestHandleNotificationAutoRenewDisabledKeepsExpiry(t *testing.T) {
	f := newAppleFixture(t)
	existingExpiry := f.now.Add(10 * 24 * time.Hour)
	f.repo.byUser[f.userID] = &models.Subscription{
		UserID:    f.userID,
		Status:    enums.SubscriptionStatusSubscribed,
		ExpiresAt: &existingExpiry,
	}
	f.stub("signed", &Notification{
		NotificationType: NotificationDidChangeRenewalStatus,
		Subtype:          SubtypeAutoRenewDisabled,
		NotificationUUID: "n-5",
	}, f.transaction(time.Time{}, 0))

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))

	sub := f.repo.byUser[f.userID]
	assert.Equal(t, enums.SubscriptionStatusCancelled, sub.Status)
	assert.Equal(t, existingExpiry.UnixMilli(), sub.ExpiresAt.UnixMilli())
}

func TestHandleNotificationAutoRenewEnabledRevertsOnlyCancelled(t *testing.T) {
	f := newAppleFixture(t)
	f.repo.byUser[f.userID] = &models.Subscription{
		UserID: f.userID,
		Status: enums.SubscriptionStatusCancelled,
	}
	f.stub("signed", &Notification{
		NotificationType: NotificationDidChangeRenewalStatus,
		Subtype:          SubtypeAutoRenewEnabled,
		NotificationUUID: "n-6",
	}, f.transaction(time.Time{}, 0))

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
	assert.Equal(t, enums.SubscriptionStatusSubscribed, f.repo.byUser[f.userID].Status)

	// A second enable on an already-subscribed row changes nothing.
	f.stub("signed-2", &Notification{
		NotificationType: NotificationDidChangeRenewalStatus,
		Subtype:          SubtypeAutoRenewEnabled,
		NotificationUUID: "n-7",
	}, f.transaction(time.Time{}, 0))
	upsertsBefore := f.repo.upserts
	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed-2"))
	assert.Equal(t, upsertsBefore, f.repo.upserts)
}

func TestHandleNotificationRevocationsExpireImmediately(t *testing.T) {
	for _, notificationType := range []string{
		NotificationExpired,
		NotificationGracePeriodExpired,
		NotificationRefund,
		NotificationRevoke,
	} {
		t.Run(notificationType, func(t *testing.T) {
			f := newAppleFixture(t)
			f.stub("signed", &Notification{
				NotificationType: notificationType,
				NotificationUUID: "n-8",
			}, f.transaction(f.now.Add(24*time.Hour), 0))

			require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
			assert.Equal(t, enums.SubscriptionStatusExpired, f.repo.byUser[f.userID].Status)
		})
	}
}

func TestHandleNotificationRenewFailureGrantsGraceOnlyWithSubtype(t *testing.T) {
	f := newAppleFixture(t)
	f.stub("grace", &Notification{
		NotificationType: NotificationDidFailToRenew,
		Subtype:          SubtypeGracePeriod,
		NotificationUUID: "n-9",
	}, f.transaction(f.now.Add(24*time.Hour), 0))

	require.NoError(t, f.svc.HandleNotification(context.Background(), "grace"))
	assert.Equal(t, enums.SubscriptionStatusGracePeriod, f.repo.byUser[f.userID].Status)

	f2 := newAppleFixture(t)
	f2.stub("no-grace", &Notification{
		NotificationType: NotificationDidFailToRenew,
		NotificationUUID: "n-10",
	}, f2.transaction(f2.now.Add(24*time.Hour), 0))

	require.NoError(t, f2.svc.HandleNotification(context.Background(), "no-grace"))
	assert.Zero(t, f2.repo.upserts)
}

func TestHandleNotificationDuplicateUUIDIsDropped(t *testing.T) {
	f := newAppleFixture(t)
	f.stub("signed", &Notification{
		NotificationType: NotificationDidRenew,
		NotificationUUID: "n-11",
	}, f.transaction(f.now.Add(24*time.Hour), 0))

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
	assert.Equal(t, 1, f.repo.upserts)
}

func TestHandleNotificationMissingIdentifiersIsAcknowledged(t *testing.T) {
	f := newAppleFixture(t)
	transaction := f.transaction(f.now.Add(24*time.Hour), 0)
	transaction.ProductID = ""
	f.stub("signed", &Notification{
		NotificationType: NotificationDidRenew,
		NotificationUUID: "n-12",
	}, transaction)

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
	assert.Zero(t, f.repo.upserts)
}

func TestHandleNotificationForeignBundleIsIgnored(t *testing.T) {
	f := newAppleFixture(t)
	notification := &Notification{
		NotificationType: NotificationDidRenew,
		NotificationUUID: "n-13",
		Data:             NotificationData{BundleID: "com.other.app"},
	}
	f.verifier.notifications["signed"] = notification

	require.NoError(t, f.svc.HandleNotification(context.Background(), "signed"))
	assert.Zero(t, f.repo.upserts)
}

func TestVerifyPurchase(t *testing.T) {
	f := newAppleFixture(t)
	f.verifier.transactions["receipt"] = f.transaction(f.now.Add(30*24*time.Hour), 0)

	entitlement, err := f.svc.VerifyPurchase(context.Background(), f.userID, "receipt")
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StateSubscribed, entitlement.State)
	assert.True(t, entitlement.IsUnlimited)

	_, err = f.svc.VerifyPurchase(context.Background(), f.userID, "forged")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeUnauthorized, appErr.Code())
}
