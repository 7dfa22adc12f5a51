package subscriptions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fitfield/tryon-backend/pkg/db/models"
	"github.com/fitfield/tryon-backend/pkg/enums"
)

func TestComputeState(t *testing.T) {
	now := time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name string
		sub  *models.Subscription
		want Entitlement
	}{
		{
			name: "no row yields no_subscription",
			sub:  nil,
			want: Entitlement{State: StateNoSubscription},
		},
		{
			name: "active trial keeps full access",
			sub:  &models.Subscription{Status: enums.SubscriptionStatusTrial, ExpiresAt: &future},
			want: Entitlement{State: StateTrial, IsSubscriber: true, RendersAllowed: true, IsUnlimited: true},
		},
		{
			name: "active subscription keeps full access",
			sub:  &models.Subscription{Status: enums.SubscriptionStatusSubscribed, ExpiresAt: &future},
			want: Entitlement{State: StateSubscribed, IsSubscriber: true, RendersAllowed: true, IsUnlimited: true},
		},
		{
			name: "cancelled stays usable until period end",
			sub:  &models.Subscription{Status: enums.SubscriptionStatusCancelled, ExpiresAt: &future},
			want: Entitlement{State: StateCancelled, IsSubscriber: true, RendersAllowed: true, IsUnlimited: true},
		},
		{
			name: "cancelled past period end is expired",
			sub:  &models.Subscription{Status: enums.SubscriptionStatusCancelled, ExpiresAt: &past},
			want: Entitlement{State: StateExpired},
		},
		{
			name: "grace period wins over lapsed expiry",
			sub:  &models.Subscription{Status: enums.SubscriptionStatusGracePeriod, ExpiresAt: &past},
			want: Entitlement{State: StateGracePeriod, IsSubscriber: true, RendersAllowed: true, IsUnlimited: true},
		},
		{
			name: "stored expired status is expired regardless of expiry",
			sub:  &models.Subscription{Status: enums.SubscriptionStatusExpired, ExpiresAt: &future},
			want: Entitlement{State: StateExpired},
		},
		{
			name: "lapsed expiry overrides an active status",
			sub:  &models.Subscription{Status: enums.SubscriptionStatusSubscribed, ExpiresAt: &past},
			want: Entitlement{State: StateExpired},
		},
		{
			name: "nil expiry never expires an active status",
			sub:  &models.Subscription{Status: enums.SubscriptionStatusSubscribed},
			want: Entitlement{State: StateSubscribed, IsSubscriber: true, RendersAllowed: true, IsUnlimited: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeState(tc.sub, now))
		})
	}
}

func TestDetermineStatus(t *testing.T) {
	assert.Equal(t, enums.SubscriptionStatusTrial, DetermineStatus(true, true))
	assert.Equal(t, enums.SubscriptionStatusSubscribed, DetermineStatus(true, false))
	assert.Equal(t, enums.SubscriptionStatusSubscribed, DetermineStatus(false, true))
	assert.Equal(t, enums.SubscriptionStatusSubscribed, DetermineStatus(false, false))
}
