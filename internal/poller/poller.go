// Package poller listens for completed checkouts and refreshes the carts the
// backend emptied.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_cart/cart-sync/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultTopic   = "checkout-outbox"
	DefaultGroupID = "cart-sync"

	readBackoff = time.Second
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartRefresher is implemented by session.Registry.
type CartRefresher interface {
	RefreshUser(ctx context.Context, userID string) error
}

type Poller struct {
	reader MessageReader
	carts  CartRefresher
	log    *zap.Logger
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func New(reader MessageReader, carts CartRefresher, log *zap.Logger) *Poller {
	return &Poller{
		reader: reader,
		carts:  carts,
		log:    logger.OrNop(log),
	}
}

// Run consumes checkout events until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("checkout poller started")
	for {
		if ctx.Err() != nil {
			p.log.Info("checkout poller stopped")
			return
		}
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.Error("error reading checkout event", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(readBackoff):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", zap.Error(err))
	}
}

type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

// poll handles one message. Only read failures are returned; a malformed
// message is logged and skipped.
func (p *Poller) poll(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	var ev checkoutEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.log.Warn("error parsing checkout event", zap.Error(err), zap.Int64("offset", m.Offset))
		return nil
	}
	if ev.UserID == "" {
		p.log.Warn("checkout event without user_id", zap.Int64("offset", m.Offset))
		return nil
	}

	if err := p.carts.RefreshUser(ctx, ev.UserID); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn("failed to refresh carts after checkout",
			zap.String("user_id", ev.UserID), zap.String("checkout_id", ev.CheckoutID), zap.Error(err))
		return nil
	}
	p.log.Debug("carts refreshed after checkout",
		zap.String("user_id", ev.UserID), zap.String("checkout_id", ev.CheckoutID))
	return nil
}
