// Package circuitbreaker fails calls to a misbehaving dependency fast instead
// of letting every caller wait for its timeout.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrOpen is returned without invoking the call while the breaker is open or
// while a half-open breaker already has its probe requests in flight.
var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	Name string
	// ConsecutiveFailures trips the breaker. Zero means 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing. Zero means 30s.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many probes are let through. Zero means 1.
	HalfOpenRequests uint32
	// IsSuccessful decides which errors count against the dependency.
	// Nil counts every non-nil error as a failure.
	IsSuccessful func(err error) bool
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

func New(cfg Config, log *zap.Logger) *Breaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	threshold := cfg.ConsecutiveFailures
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: cfg.IsSuccessful,
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

// Execute runs fn unless the breaker is open. fn's own error is returned as is.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}
