// Package feed contains the venue producers that normalize raw venue data
// onto the event bus, and the supervisor that keeps each producer connected.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Producer is one venue-specific market-data source. RunOnce performs a full
// connect/stream/disconnect cycle, publishing normalized updates onto the bus
// it was constructed with, and returns when the connection drops or ctx is
// cancelled. It must release the connection on every exit path.
type Producer interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// BackoffConfig shapes the reconnect delay between producer attempts.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff matches the reconnect cadence used in production: start at
// one second, double, cap at thirty.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2}
}

// Supervisor drives a Producer in a retry loop. Errors from RunOnce are
// logged and retried after the current backoff delay; the delay grows after
// every attempt, successful or not, and only a fresh Start resets it.
type Supervisor struct {
	producer Producer
	backoff  BackoffConfig
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor wraps producer with the given backoff policy.
func NewSupervisor(producer Producer, backoff BackoffConfig, logger *slog.Logger) *Supervisor {
	if backoff.Initial <= 0 {
		backoff.Initial = time.Second
	}
	if backoff.Max < backoff.Initial {
		backoff.Max = backoff.Initial
	}
	if backoff.Multiplier < 1 {
		backoff.Multiplier = 2
	}
	return &Supervisor{
		producer: producer,
		backoff:  backoff,
		logger:   logger.With(slog.String("producer", producer.Name())),
	}
}

// Start launches the retry loop in the background. It is idempotent: calling
// Start while a loop is running is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			s.logger.Debug("producer already running")
			return
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)
}

// Stop cancels the in-flight attempt and waits for the loop to finish, giving
// the producer a chance to close its connection. Safe to call when not
// running and safe to call twice.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	delay := s.backoff.Initial
	for {
		if ctx.Err() != nil {
			break
		}
		err := s.producer.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("producer attempt failed", slog.String("error", err.Error()))
		}
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * s.backoff.Multiplier)
		if delay > s.backoff.Max {
			delay = s.backoff.Max
		}
	}
	s.logger.Info("producer stopped")
}
