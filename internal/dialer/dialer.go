// Package dialer originates outbound calls and records their status. Bulk
// dials run sequentially with a fixed delay between attempts; the telephony
// API is guarded by a circuit breaker and per-attempt retry.
package dialer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/circuitbreaker"
	"github.com/dialworks/leadagent/pkg/logger"
	"github.com/dialworks/leadagent/pkg/metrics"
	"github.com/dialworks/leadagent/pkg/retry"
	"github.com/dialworks/leadagent/pkg/twilio"
	"github.com/dialworks/leadagent/pkg/utils"
)

// CallPlacer is the telephony operation the dialer needs.
type CallPlacer interface {
	PlaceCall(ctx context.Context, req twilio.PlaceCallRequest) (*twilio.CallResource, error)
}

// CallStore records call attempts and lead status transitions.
type CallStore interface {
	UpsertCall(ctx context.Context, callSID, leadPhone, status string) error
	UpdateStatus(ctx context.Context, phone, status string) error
}

type Config struct {
	FromNumber        string
	CallbackURL       string
	StatusCallbackURL string
	Delay             time.Duration // pause between bulk dial attempts
	Retry             retry.Config  // zero value means retry defaults
}

type Dialer struct {
	client  CallPlacer
	store   CallStore
	breaker *circuitbreaker.CircuitBreaker
	cfg     Config
	logger  *zap.Logger
}

func New(client CallPlacer, st CallStore, cfg Config, log *zap.Logger) *Dialer {
	if cfg.Delay <= 0 {
		cfg.Delay = 2 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Dialer{
		client:  client,
		store:   st,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		cfg:     cfg,
		logger:  log,
	}
}

// Dial places one call. The phone is canonicalized before dialing; numbers
// with no canonical form are rejected without touching the telephony API.
func (d *Dialer) Dial(ctx context.Context, phone string) (*twilio.CallResource, error) {
	canonical := utils.CanonicalPhone(phone)
	if canonical == "" {
		metrics.DialAttempts.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("phone %q has no canonical form", phone)
	}

	var call *twilio.CallResource
	err := d.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, d.cfg.Retry, func() error {
			var placeErr error
			call, placeErr = d.client.PlaceCall(ctx, twilio.PlaceCallRequest{
				To:                canonical,
				From:              d.cfg.FromNumber,
				CallbackURL:       d.cfg.CallbackURL,
				StatusCallbackURL: d.cfg.StatusCallbackURL,
			})
			return placeErr
		})
	})
	if err != nil {
		metrics.DialAttempts.WithLabelValues("error").Inc()
		if updateErr := d.store.UpdateStatus(ctx, canonical, store.StatusFailed); updateErr != nil {
			d.logger.Warn("Failed to mark lead as failed", zap.Error(updateErr))
		}
		return nil, fmt.Errorf("failed to place call: %w", err)
	}

	metrics.DialAttempts.WithLabelValues("ok").Inc()
	d.logger.Info("Call placed",
		zap.String("call_sid", call.Sid),
		logger.MaskPhone("to", canonical),
	)

	if err := d.store.UpsertCall(ctx, call.Sid, canonical, call.Status); err != nil {
		d.logger.Warn("Failed to record call", zap.Error(err), zap.String("call_sid", call.Sid))
	}
	if err := d.store.UpdateStatus(ctx, canonical, store.StatusCalled); err != nil {
		d.logger.Warn("Failed to update lead status", zap.Error(err))
	}

	return call, nil
}

// BatchResult summarizes a bulk dial run.
type BatchResult struct {
	Attempted int `json:"attempted"`
	Placed    int `json:"placed"`
	Failed    int `json:"failed"`
}

// DialBatch dials each number in order, pausing between attempts so the
// assistant handles one conversation at a time. Stops early if ctx is done.
func (d *Dialer) DialBatch(ctx context.Context, phones []string) BatchResult {
	var result BatchResult
	for i, phone := range phones {
		if i > 0 {
			select {
			case <-ctx.Done():
				d.logger.Info("Bulk dial cancelled", zap.Int("attempted", result.Attempted))
				return result
			case <-time.After(d.cfg.Delay):
			}
		}

		result.Attempted++
		if _, err := d.Dial(ctx, phone); err != nil {
			result.Failed++
			d.logger.Warn("Bulk dial attempt failed", zap.Error(err))
			continue
		}
		result.Placed++
	}
	return result
}
