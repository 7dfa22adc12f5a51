package apple

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitfield/tryon-backend/internal/subscriptions"
	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/db/models"
	"github.com/fitfield/tryon-backend/pkg/enums"
	pkgerrors "github.com/fitfield/tryon-backend/pkg/errors"
	"github.com/fitfield/tryon-backend/pkg/logger"
	"github.com/fitfield/tryon-backend/pkg/metrics"
	"github.com/fitfield/tryon-backend/pkg/redis"
)

// fallbackExpiry covers transactions delivered without an expiry date.
const fallbackExpiry = 7 * 24 * time.Hour

const webhookSource = "apple"

// Service reconciles App Store notifications into subscription rows and
// verifies client-submitted purchase transactions.
type Service interface {
	HandleNotification(ctx context.Context, signedPayload string) error
	VerifyPurchase(ctx context.Context, userID uuid.UUID, signedTransaction string) (*subscriptions.Entitlement, error)
}

// ServiceParams collects the reconciler's collaborators.
type ServiceParams struct {
	Verifier      Verifier
	Subscriptions subscriptions.Repository
	Dedupe        redis.IdempotencyStore
	Metrics       *metrics.RenderMetrics
	Logger        *logger.Logger
	Config        config.AppleConfig
}

type service struct {
	ServiceParams
	now func() time.Time
}

// NewService validates the collaborators and wires the reconciler. The redis
// dedupe store is optional; without it replay protection rests solely on the
// idempotent upserts.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Verifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notification verifier required")
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	case params.Config.BundleID == "":
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "apple bundle id required")
	}
	if params.Config.DedupeTTL <= 0 {
		params.Config.DedupeTTL = 30 * 24 * time.Hour
	}
	return &service{ServiceParams: params, now: time.Now}, nil
}

// HandleNotification verifies and applies one signed notification. Malformed
// or partial deliveries are logged and acknowledged; only a verification
// failure surfaces as an error, so the transport can answer 401.
func (s *service) HandleNotification(ctx context.Context, signedPayload string) error {
	notification, err := s.Verifier.VerifyNotification(signedPayload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify notification")
	}

	ctx = s.Logger.WithField(ctx, "notificationType", notification.NotificationType)

	if notification.NotificationType == NotificationTest {
		s.Logger.Info(ctx, "test notification acknowledged")
		return nil
	}

	if duplicate, err := s.seenBefore(ctx, notification.NotificationUUID); err != nil {
		s.Logger.Error(ctx, "notification dedupe check", err)
	} else if duplicate {
		s.Metrics.IncWebhook(webhookSource, "duplicate")
		return nil
	}

	if notification.Data.BundleID != "" && notification.Data.BundleID != s.Config.BundleID {
		s.Logger.Warn(ctx, "notification for foreign bundle "+notification.Data.BundleID)
		s.Metrics.IncWebhook(webhookSource, "foreign_bundle")
		return nil
	}

	if notification.Data.SignedTransactionInfo == "" {
		s.Logger.Warn(ctx, "notification without transaction info")
		s.Metrics.IncWebhook(webhookSource, "no_transaction")
		return nil
	}

	transaction, err := s.Verifier.VerifyTransaction(notification.Data.SignedTransactionInfo)
	if err != nil {
		s.Logger.Error(ctx, "verify embedded transaction", err)
		s.Metrics.IncWebhook(webhookSource, "bad_transaction")
		return nil
	}

	userID, ok := s.correlate(ctx, transaction)
	if !ok {
		s.Metrics.IncWebhook(webhookSource, "uncorrelated")
		return nil
	}

	if err := s.apply(ctx, notification, transaction, userID); err != nil {
		return err
	}
	s.Metrics.IncWebhook(webhookSource, "applied")
	return nil
}

// seenBefore claims the notification UUID in redis; the second claim loses.
func (s *service) seenBefore(ctx context.Context, notificationUUID string) (bool, error) {
	if s.Dedupe == nil || notificationUUID == "" {
		return false, nil
	}
	key := s.Dedupe.IdempotencyKey("apple-notification", notificationUUID)
	claimed, err := s.Dedupe.SetNX(ctx, key, "1", s.Config.DedupeTTL)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// correlate extracts the user id and required transaction identifiers.
func (s *service) correlate(ctx context.Context, transaction *Transaction) (uuid.UUID, bool) {
	if transaction.AppAccountToken == "" {
		s.Logger.Warn(ctx, "transaction without app account token")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(transaction.AppAccountToken)
	if err != nil {
		s.Logger.Warn(ctx, "unparseable app account token")
		return uuid.Nil, false
	}
	if transaction.TransactionID == "" || transaction.OriginalTransactionID == "" || transaction.ProductID == "" {
		s.Logger.Warn(ctx, "transaction missing identifiers")
		return uuid.Nil, false
	}
	return userID, true
}

func (s *service) apply(ctx context.Context, notification *Notification, transaction *Transaction, userID uuid.UUID) error {
	switch notification.NotificationType {
	case NotificationSubscribed:
		isInitialBuy := notification.Subtype == SubtypeInitialBuy
		status := subscriptions.DetermineStatus(isInitialBuy, transaction.HasTrialOffer())
		return s.upsert(ctx, userID, transaction, status)

	case NotificationDidRenew:
		return s.upsert(ctx, userID, transaction, enums.SubscriptionStatusSubscribed)

	case NotificationDidChangeRenewalStatus:
		return s.applyRenewalStatusChange(ctx, notification.Subtype, userID, transaction)

	case NotificationExpired, NotificationGracePeriodExpired, NotificationRefund, NotificationRevoke:
		return s.upsert(ctx, userID, transaction, enums.SubscriptionStatusExpired)

	case NotificationDidFailToRenew:
		if notification.Subtype != SubtypeGracePeriod {
			s.Logger.Warn(ctx, "renewal failure without grace period, no state change")
			return nil
		}
		return s.upsert(ctx, userID, transaction, enums.SubscriptionStatusGracePeriod)

	default:
		s.Logger.Warn(ctx, "unhandled notification type "+notification.NotificationType)
		return nil
	}
}

// applyRenewalStatusChange mutates only an existing subscription: cancelling
// keeps the current expiry so access runs to period end, and re-enabling
// auto-renew reverts a cancellation and nothing else.
func (s *service) applyRenewalStatusChange(ctx context.Context, subtype string, userID uuid.UUID, transaction *Transaction) error {
	existing, err := s.Subscriptions.FindByUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if existing == nil {
		s.Logger.Warn(ctx, "renewal status change for user without subscription")
		return nil
	}

	switch subtype {
	case SubtypeAutoRenewDisabled:
		existing.Status = enums.SubscriptionStatusCancelled
	case SubtypeAutoRenewEnabled:
		if existing.Status != enums.SubscriptionStatusCancelled {
			return nil
		}
		existing.Status = enums.SubscriptionStatusSubscribed
	default:
		s.Logger.Warn(ctx, "unhandled renewal status subtype "+subtype)
		return nil
	}

	existing.AppleTransactionID = &transaction.TransactionID
	existing.AppleOriginalTransactionID = &transaction.OriginalTransactionID
	if err := s.Subscriptions.Upsert(ctx, existing); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
	}
	return nil
}

func (s *service) upsert(ctx context.Context, userID uuid.UUID, transaction *Transaction, status enums.SubscriptionStatus) error {
	expiresAt := s.expiryFor(transaction)
	sub := &models.Subscription{
		UserID:                     userID,
		Status:                     status,
		ExpiresAt:                  &expiresAt,
		AppleTransactionID:         &transaction.TransactionID,
		AppleOriginalTransactionID: &transaction.OriginalTransactionID,
		ProductID:                  &transaction.ProductID,
	}
	if err := s.Subscriptions.Upsert(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert subscription")
	}
	s.Logger.Info(s.Logger.WithUserID(ctx, userID.String()), "subscription updated to "+status.String())
	return nil
}

func (s *service) expiryFor(transaction *Transaction) time.Time {
	if transaction.ExpiresDate > 0 {
		return time.UnixMilli(transaction.ExpiresDate)
	}
	return s.now().Add(fallbackExpiry)
}

// VerifyPurchase applies a client-submitted transaction after an in-app
// purchase, then reports the resulting entitlement.
func (s *service) VerifyPurchase(ctx context.Context, userID uuid.UUID, signedTransaction string) (*subscriptions.Entitlement, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(signedTransaction) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signed transaction is required")
	}

	transaction, err := s.Verifier.VerifyTransaction(signedTransaction)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify transaction")
	}
	if transaction.TransactionID == "" || transaction.OriginalTransactionID == "" || transaction.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction missing identifiers")
	}

	status := subscriptions.DetermineStatus(true, transaction.HasTrialOffer())
	if err := s.upsert(ctx, userID, transaction, status); err != nil {
		return nil, err
	}

	stored, err := s.Subscriptions.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	entitlement := subscriptions.ComputeState(stored, s.now())
	return &entitlement, nil
}
