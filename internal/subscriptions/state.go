package subscriptions

import (
	"time"

	"github.com/fitfield/tryon-backend/pkg/db/models"
	"github.com/fitfield/tryon-backend/pkg/enums"
)

// State is the normalized view of a user's subscription derived from the
// stored row. It adds no_subscription for users with no row at all.
type State string

const (
	StateNoSubscription State = "no_subscription"
	StateTrial          State = State(enums.SubscriptionStatusTrial)
	StateSubscribed     State = State(enums.SubscriptionStatusSubscribed)
	StateCancelled      State = State(enums.SubscriptionStatusCancelled)
	StateGracePeriod    State = State(enums.SubscriptionStatusGracePeriod)
	StateExpired        State = State(enums.SubscriptionStatusExpired)
)

// Entitlement bundles the derived capability flags alongside the state.
type Entitlement struct {
	State          State `json:"state"`
	IsSubscriber   bool  `json:"is_subscriber"`
	RendersAllowed bool  `json:"renders_allowed"`
	IsUnlimited    bool  `json:"is_unlimited"`
}

// ComputeState derives the entitlement from a stored subscription. Precedence,
// evaluated in order:
//  1. no row
//  2. grace period (the billing provider owns the grace window, so a stale
//     expires_at must not pre-empt it)
//  3. expired status or a lapsed expires_at
//  4. everything else echoes the stored status and keeps access; a cancelled
//     subscription stays usable until its paid period actually ends.
func ComputeState(sub *models.Subscription, now time.Time) Entitlement {
	if sub == nil {
		return Entitlement{State: StateNoSubscription}
	}

	if sub.Status == enums.SubscriptionStatusGracePeriod {
		return Entitlement{
			State:          StateGracePeriod,
			IsSubscriber:   true,
			RendersAllowed: true,
			IsUnlimited:    true,
		}
	}

	if sub.Status == enums.SubscriptionStatusExpired ||
		(sub.ExpiresAt != nil && sub.ExpiresAt.Before(now)) {
		return Entitlement{State: StateExpired}
	}

	return Entitlement{
		State:          State(sub.Status),
		IsSubscriber:   true,
		RendersAllowed: true,
		IsUnlimited:    true,
	}
}

// DetermineStatus maps purchase flags onto the stored status: a trial is
// recorded only for an initial buy that carries a trial offer.
func DetermineStatus(isInitialBuy, hasTrial bool) enums.SubscriptionStatus {
	if isInitialBuy && hasTrial {
		return enums.SubscriptionStatusTrial
	}
	return enums.SubscriptionStatusSubscribed
}
