package push

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/store"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errGone = stderrors.New("subscription gone")

// Deliverer sends one encoded payload to one subscription
type Deliverer interface {
	Ready() error
	Send(ctx context.Context, sub store.PushSubscription, payload []byte) error
}

// Sender delivers Web Push messages signed with the configured VAPID keys.
// Requests are paced by a token bucket and guarded by a circuit breaker.
type Sender struct {
	cfg     config.PushConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[int]
	logger  *zap.Logger
}

// SenderOption configures a Sender
type SenderOption func(*Sender)

// WithHTTPClient overrides the client used to reach push services
func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) {
		s.client = c
	}
}

// NewSender creates a sender from the push configuration
func NewSender(cfg config.PushConfig, logger *zap.Logger, opts ...SenderOption) *Sender {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Sender{
		cfg:     cfg,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}

	s.breaker = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// an expired subscription says nothing about the push service
			return err == nil || stderrors.Is(err, errGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Push circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready reports PUSH_001 when either VAPID key is missing
func (s *Sender) Ready() error {
	if !s.cfg.HasKeys() {
		return errors.ErrPushKeysMissing
	}
	return nil
}

// Send delivers payload to sub. A 404 or 410 from the push service maps to
// PUSH_002; every other failure maps to PUSH_003.
func (s *Sender) Send(ctx context.Context, sub store.PushSubscription, payload []byte) error {
	if err := s.Ready(); err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.ErrPushService.WithCause(err)
	}

	_, err := s.breaker.Execute(func() (int, error) {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				Auth:   sub.Auth,
				P256dh: sub.P256dh,
			},
		}, &webpush.Options{
			HTTPClient:      s.client,
			Subscriber:      s.cfg.Subscriber,
			VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
			VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
			TTL:             s.cfg.TTL,
			Urgency:         webpush.UrgencyHigh,
		})
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return resp.StatusCode, fmt.Errorf("%w: status %d", errGone, resp.StatusCode)
		case resp.StatusCode >= 400:
			return resp.StatusCode, fmt.Errorf("push service returned status %d", resp.StatusCode)
		}
		return resp.StatusCode, nil
	})

	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errGone):
		return errors.ErrSubscriptionGone.WithCause(err)
	default:
		return errors.ErrPushService.WithCause(err)
	}
}

// State returns the breaker state, for logging and tests
func (s *Sender) State() gobreaker.State {
	return s.breaker.State()
}

// GenerateKeys creates a new VAPID key pair
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
