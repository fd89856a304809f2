package domain

// SubscriptionKeys carries the client keys a push service needs to encrypt
// a message for one browser.
type SubscriptionKeys struct {
	Auth   string `json:"auth"`
	P256dh string `json:"p256dh"`
}

// Subscription is a registered push destination.
type Subscription struct {
	ID       string           `json:"-"`
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// Snapshot is a point-in-time copy of the subscriber set keyed by
// subscription id.
type Snapshot map[string]Subscription

// NotificationPayload is shared by value across every delivery of one run.
type NotificationPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// DeliveryStatus classifies a single push attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	// DeliveryGone means the push service reported the subscription expired.
	DeliveryGone DeliveryStatus = "gone"
)

// DeliveryOutcome is the result of one push attempt.
type DeliveryOutcome struct {
	SubscriptionID string
	Endpoint       string
	Status         DeliveryStatus
	StatusCode     int
	Err            error
}

// OK reports whether the delivery succeeded.
func (o DeliveryOutcome) OK() bool {
	return o.Status == DeliveryDelivered
}
