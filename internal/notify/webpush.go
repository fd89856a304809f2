package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"artpost/internal/domain"
)

// ErrSubscriptionGone is returned when the push service reports that the
// subscription no longer exists (404 or 410).
var ErrSubscriptionGone = errors.New("push subscription expired")

// StatusError carries a non-success push service response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service responded %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound || e.Code == http.StatusGone {
		return ErrSubscriptionGone
	}
	return nil
}

// IsGone reports whether err marks a stale subscription.
func IsGone(err error) bool {
	return errors.Is(err, ErrSubscriptionGone)
}

// VAPIDConfig holds the application server identity used to sign pushes.
type VAPIDConfig struct {
	Subject    string
	PublicKey  string
	PrivateKey string
	TTL        time.Duration
}

// WebPush delivers messages with the Web Push protocol: the payload is
// encrypted for the subscription keys and the request is VAPID signed.
type WebPush struct {
	vapid  VAPIDConfig
	client webpush.HTTPClient
}

// NewWebPush builds a pusher. A nil client uses http.DefaultClient.
func NewWebPush(vapid VAPIDConfig, client webpush.HTTPClient) *WebPush {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPush{vapid: vapid, client: client}
}

func (w *WebPush) Push(ctx context.Context, sub domain.Subscription, message []byte) (int, error) {
	if sub.Endpoint == "" {
		return 0, errors.New("subscription has no endpoint")
	}
	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.vapid.Subject,
		VAPIDPublicKey:  w.vapid.PublicKey,
		VAPIDPrivateKey: w.vapid.PrivateKey,
		TTL:             int(w.vapid.TTL / time.Second),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return 0, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

var _ domain.Pusher = (*WebPush)(nil)

// Disabled is used when no VAPID identity is configured; every attempt fails
// without network activity.
type Disabled struct{}

func (Disabled) Push(context.Context, domain.Subscription, []byte) (int, error) {
	return 0, errors.New("push delivery is not configured")
}
