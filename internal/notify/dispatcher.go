package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"artpost/internal/domain"
	"artpost/internal/metrics"
)

// Dispatcher fans a payload out to every subscription in a snapshot and
// collects one outcome per subscription. Dispatch never fails as a whole.
type Dispatcher struct {
	pusher      domain.Pusher
	logger      zerolog.Logger
	metrics     metrics.Deliveries
	concurrency int
	timeout     time.Duration
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency bounds the number of in-flight deliveries. A value of zero
// or less, the default, starts every delivery at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n < 0 {
			n = 0
		}
		d.concurrency = n
	}
}

// WithTimeout bounds each delivery attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the delivery counter.
func WithMetrics(m metrics.Deliveries) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDispatcher returns a Dispatcher delivering through pusher.
func NewDispatcher(pusher domain.Pusher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pusher:      pusher,
		logger:      zerolog.Nop(),
		metrics:     metrics.Noop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers payload to every subscription concurrently and waits for
// all attempts to settle. An empty snapshot returns an empty slice without
// touching the pusher. Outcomes are ordered by subscription id.
func (d *Dispatcher) Dispatch(ctx context.Context, snapshot domain.Snapshot, payload domain.NotificationPayload) []domain.DeliveryOutcome {
	if len(snapshot) == 0 {
		return []domain.DeliveryOutcome{}
	}

	subs := make([]domain.Subscription, 0, len(snapshot))
	for id, sub := range snapshot {
		sub.ID = id
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })

	outcomes := make([]domain.DeliveryOutcome, len(subs))
	message, err := json.Marshal(payload)
	if err != nil {
		for i, sub := range subs {
			outcomes[i] = failed(sub, 0, fmt.Errorf("encode payload: %w", err))
		}
		d.record(outcomes)
		return outcomes
	}

	var g errgroup.Group
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, sub, message)
			return nil
		})
	}
	_ = g.Wait()

	d.record(outcomes)
	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, sub domain.Subscription, message []byte) (outcome domain.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = failed(sub, 0, fmt.Errorf("push panicked: %v", r))
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	code, err := d.pusher.Push(ctx, sub, message)
	if err != nil {
		return failed(sub, code, err)
	}
	return domain.DeliveryOutcome{
		SubscriptionID: sub.ID,
		Endpoint:       sub.Endpoint,
		Status:         domain.DeliveryDelivered,
		StatusCode:     code,
	}
}

func (d *Dispatcher) record(outcomes []domain.DeliveryOutcome) {
	delivered := 0
	for _, o := range outcomes {
		d.metrics.IncDelivery(string(o.Status))
		if o.OK() {
			delivered++
			continue
		}
		d.logger.Warn().
			Err(o.Err).
			Str("subscription_id", o.SubscriptionID).
			Str("endpoint", o.Endpoint).
			Int("status_code", o.StatusCode).
			Str("status", string(o.Status)).
			Msg("push delivery failed")
	}
	d.logger.Info().
		Int("subscribers", len(outcomes)).
		Int("delivered", delivered).
		Int("failed", len(outcomes)-delivered).
		Msg("notifications dispatched")
}

func failed(sub domain.Subscription, code int, err error) domain.DeliveryOutcome {
	status := domain.DeliveryFailed
	if IsGone(err) {
		status = domain.DeliveryGone
	}
	return domain.DeliveryOutcome{
		SubscriptionID: sub.ID,
		Endpoint:       sub.Endpoint,
		Status:         status,
		StatusCode:     code,
		Err:            err,
	}
}
