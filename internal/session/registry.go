package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-sync/internal/engine"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"github.com/fjod/go_cart/cart-sync/pkg/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// GatewayFactory builds the backend client for one session credential.
type GatewayFactory func(cred gateway.Credential) engine.Gateway

// loadTimeout bounds the shared first load of an engine.
const loadTimeout = 30 * time.Second

type liveCart struct {
	session Session
	engine  *engine.Engine
}

// Registry owns one cart engine per live session. The least recently used
// engines are closed once the registry is full; they are rebuilt from the
// store on the next request.
type Registry struct {
	store      Store
	newGateway GatewayFactory
	log        *zap.Logger
	carts      *lru.Cache[string, *liveCart]
	sfg        singleflight.Group

	// mu orders engine registration against session removal.
	mu sync.Mutex
}

func NewRegistry(store Store, newGateway GatewayFactory, size int, log *zap.Logger) (*Registry, error) {
	r := &Registry{
		store:      store,
		newGateway: newGateway,
		log:        logger.OrNop(log),
	}

	carts, err := lru.NewWithEvict(size, func(id string, c *liveCart) {
		c.engine.Close()
		r.log.Debug("cart engine closed", zap.String("session_id", id))
	})
	if err != nil {
		return nil, fmt.Errorf("create engine cache: %w", err)
	}
	r.carts = carts
	return r, nil
}

// Create persists a new session for the credential.
func (r *Registry) Create(ctx context.Context, userID, accessToken string) (Session, error) {
	s, err := New(userID, accessToken)
	if err != nil {
		return Session{}, err
	}
	if err := r.store.Set(ctx, s); err != nil {
		return Session{}, err
	}
	r.log.Info("session created", zap.String("session_id", s.ID), zap.String("user_id", s.UserID))
	return s, nil
}

// Lookup returns the stored session without building an engine. A session
// the store no longer holds loses its live engine too.
func (r *Registry) Lookup(ctx context.Context, id string) (Session, error) {
	s, err := r.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		r.mu.Lock()
		r.carts.Remove(id)
		r.mu.Unlock()
	}
	return s, err
}

// Engine returns the live engine of a session, creating and initializing it
// on first use. An engine whose first load failed for a transient reason is
// still returned; its state carries the error. An unauthenticated first load
// ends the session.
//
// Concurrent callers share one load. The load is detached from their
// contexts and bounded by loadTimeout, so a caller giving up only stops its
// own wait.
func (r *Registry) Engine(ctx context.Context, id string) (*engine.Engine, error) {
	if c, ok := r.carts.Get(id); ok {
		return c.engine, nil
	}

	ch := r.sfg.DoChan(id, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return r.load(loadCtx, id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*engine.Engine), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) load(ctx context.Context, id string) (*engine.Engine, error) {
	if c, ok := r.carts.Get(id); ok {
		return c.engine, nil
	}

	s, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	log := r.log.With(zap.String("session_id", id), zap.String("user_id", s.UserID))
	eng := engine.New(r.newGateway(gateway.Credential{Token: s.AccessToken}), engine.Options{
		Logger: log,
		OnUnauthenticated: func(err error) {
			log.Warn("backend refused session credential", zap.Error(err))
			if err := r.Expire(context.Background(), id); err != nil {
				log.Error("expire session failed", zap.Error(err))
			}
		},
		OnChange: func(st engine.State) {
			log.Debug("cart state changed", zap.String("status", st.Status.String()),
				zap.Int("lines", len(st.Snapshot.Lines)))
		},
	})

	if err := eng.Initialize(ctx); err != nil {
		if errors.Is(err, gateway.ErrUnauthenticated) {
			eng.Close()
			return nil, err
		}
		log.Warn("initial cart load failed", zap.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// the session may have ended while the first load was in flight
	if _, err := r.store.Get(ctx, id); err != nil {
		eng.Close()
		if errors.Is(err, ErrSessionNotFound) {
			log.Info("session ended during first cart load")
		}
		return nil, err
	}
	r.carts.Add(id, &liveCart{session: s, engine: eng})
	return eng, nil
}

// Logout discards the session's cart state, in-flight responses included, and
// deletes the session.
func (r *Registry) Logout(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.carts.Peek(id); ok {
		c.engine.Reset()
		r.carts.Remove(id)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.log.Info("session ended", zap.String("session_id", id))
	return nil
}

// Expire ends a session whose credential the backend no longer accepts.
func (r *Registry) Expire(ctx context.Context, id string) error {
	return r.Logout(ctx, id)
}

// RefreshUser refreshes every live cart of a user, e.g. after the backend
// emptied it during checkout.
func (r *Registry) RefreshUser(ctx context.Context, userID string) error {
	var errs []error
	refreshed := 0
	for _, id := range r.carts.Keys() {
		c, ok := r.carts.Peek(id)
		if !ok || c.session.UserID != userID {
			continue
		}
		refreshed++
		if err := c.engine.Refresh(ctx); err != nil && !errors.Is(err, engine.ErrClosed) {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}

	r.log.Debug("refreshed user carts", zap.String("user_id", userID), zap.Int("carts", refreshed))
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	return r.carts.Len()
}

// Close shuts every live engine down.
func (r *Registry) Close() {
	r.carts.Purge()
}
