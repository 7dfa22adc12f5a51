package apple

// App Store Server Notification V2 types this reconciler reacts to.
const (
	NotificationSubscribed             = "SUBSCRIBED"
	NotificationDidRenew               = "DID_RENEW"
	NotificationDidChangeRenewalStatus = "DID_CHANGE_RENEWAL_STATUS"
	NotificationExpired                = "EXPIRED"
	NotificationGracePeriodExpired     = "GRACE_PERIOD_EXPIRED"
	NotificationRefund                 = "REFUND"
	NotificationRevoke                 = "REVOKE"
	NotificationDidFailToRenew         = "DID_FAIL_TO_RENEW"
	NotificationTest                   = "TEST"
)

const (
	SubtypeInitialBuy        = "INITIAL_BUY"
	SubtypeResubscribe       = "RESUBSCRIBE"
	SubtypeAutoRenewDisabled = "AUTO_RENEW_DISABLED"
	SubtypeAutoRenewEnabled  = "AUTO_RENEW_ENABLED"
	SubtypeGracePeriod       = "GRACE_PERIOD"
)

// offerTypeIntroductory marks a transaction carrying an introductory (trial) offer.
const offerTypeIntroductory = 1

// RequestBody is the raw notification envelope Apple posts.
type RequestBody struct {
	SignedPayload string `json:"signedPayload"`
}

// Notification is the decoded outer payload of a V2 notification.
type Notification struct {
	NotificationType string           `json:"notificationType"`
	Subtype          string           `json:"subtype"`
	NotificationUUID string           `json:"notificationUUID"`
	Data             NotificationData `json:"data"`
}

type NotificationData struct {
	AppAppleID            int64  `json:"appAppleId"`
	BundleID              string `json:"bundleId"`
	Environment           string `json:"environment"`
	SignedTransactionInfo string `json:"signedTransactionInfo"`
	SignedRenewalInfo     string `json:"signedRenewalInfo"`
}

// Transaction is the decoded inner signed transaction.
type Transaction struct {
	AppAccountToken       string `json:"appAccountToken"`
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	BundleID              string `json:"bundleId"`
	Environment           string `json:"environment"`
	// Millisecond epoch timestamps, per the App Store payload format.
	PurchaseDate int64  `json:"purchaseDate"`
	ExpiresDate  int64  `json:"expiresDate"`
	OfferType    int    `json:"offerType"`
	Type         string `json:"type"`
}

// HasTrialOffer reports whether the purchase carried an introductory offer.
func (t Transaction) HasTrialOffer() bool {
	return t.OfferType == offerTypeIntroductory
}
