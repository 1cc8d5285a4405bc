// Package engine keeps a local view of one shopper's cart consistent with the
// storefront backend.
//
// Mutations are serialized through a FIFO queue served by a single worker and
// are pessimistic: the engine only changes its snapshot and totals from
// backend responses, refetching items and totals after every accepted
// mutation. Every fetch is stamped with a version marker; responses issued
// before a later mutation or before a session reset are discarded.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_cart/cart-sync/internal/domain"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"github.com/fjod/go_cart/cart-sync/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MaxQuantity caps a single line, as the checkout flow does.
const MaxQuantity = 99

// Gateway is the slice of the backend the engine depends on.
type Gateway interface {
	FetchItems(ctx context.Context) (domain.CartSnapshot, error)
	FetchTotals(ctx context.Context) (domain.CartTotals, error)
	SetQuantity(ctx context.Context, productID int64, quantity int) error
	RemoveItem(ctx context.Context, productID int64) error
	ApplyDiscount(ctx context.Context, code string) (gateway.DiscountResult, error)
	AddItem(ctx context.Context, productID int64, quantity int) error
	ClearCart(ctx context.Context) error
	PlaceOrder(ctx context.Context, paymentMethod string) (domain.Order, error)
	FetchOrder(ctx context.Context, orderID int64) (domain.OrderDetail, error)
}

// State is an immutable copy of the engine state handed to readers.
type State struct {
	Snapshot domain.CartSnapshot
	// Totals is nil until the first successful totals fetch.
	Totals   *domain.CartTotals
	Discount *domain.DiscountState
	Status   domain.SyncStatus
	// Err is the failure that put the engine into SyncStatusError.
	Err error
}

type Options struct {
	Logger *zap.Logger
	// OnUnauthenticated runs on its own goroutine whenever the backend
	// refuses the session credential.
	OnUnauthenticated func(err error)
	// OnChange receives a copy of the state after every change. It must not
	// call mutating engine methods.
	OnChange func(State)
}

type Engine struct {
	gw   Gateway
	log  *zap.Logger
	opts Options

	mu       sync.Mutex
	snapshot domain.CartSnapshot
	totals   *domain.CartTotals
	discount *domain.DiscountState
	status   domain.SyncStatus
	lastErr  error
	mutating bool

	// version markers
	epoch       uint64
	mutationSeq uint64
	fetchSeq    uint64

	sessionCtx    context.Context
	cancelSession context.CancelFunc

	ops       chan *op
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	sfg       singleflight.Group
}

type op struct {
	name   string
	ctx    context.Context
	run    func(ctx context.Context) error
	result chan error
}

func New(gw Gateway, opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		gw:            gw,
		log:           logger.OrNop(opts.Logger),
		opts:          opts,
		status:        domain.SyncStatusIdle,
		sessionCtx:    ctx,
		cancelSession: cancel,
		ops:           make(chan *op),
		done:          make(chan struct{}),
	}

	e.wg.Add(1)
	go e.worker()

	return e
}

// State returns a deep copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Reset drops all local state and discards every response still in flight.
// The engine stays usable for a new session.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.resetLocked()
	e.sessionCtx, e.cancelSession = context.WithCancel(context.Background())
	st := e.stateLocked()
	e.mu.Unlock()

	e.log.Info("cart session reset")
	e.notify(st)
}

// Close tears the engine down. In-flight responses are discarded and every
// later call returns ErrClosed. Close is idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.resetLocked()
		e.mu.Unlock()

		close(e.done)
		e.wg.Wait()
	})
}

func (e *Engine) resetLocked() {
	e.epoch++
	e.cancelSession()
	e.snapshot = domain.CartSnapshot{}
	e.totals = nil
	e.discount = nil
	e.status = domain.SyncStatusIdle
	e.lastErr = nil
	e.mutating = false
}

func (e *Engine) stateLocked() State {
	st := State{
		Snapshot: e.snapshot.Clone(),
		Status:   e.status,
		Err:      e.lastErr,
	}
	if e.totals != nil {
		t := e.totals.Clone()
		st.Totals = &t
	}
	if e.discount != nil {
		d := *e.discount
		st.Discount = &d
	}
	return st
}

func (e *Engine) notify(st State) {
	if e.opts.OnChange != nil {
		e.opts.OnChange(st)
	}
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// submit queues fn behind every mutation issued before it and waits for it.
func (e *Engine) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	o := &op{name: name, ctx: ctx, run: fn, result: make(chan error, 1)}

	select {
	case e.ops <- o:
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-o.result:
		return err
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case o := <-e.ops:
			o.result <- e.execute(o)
		case <-e.done:
			return
		}
	}
}

func (e *Engine) execute(o *op) error {
	if err := o.ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	session := e.sessionCtx
	e.mu.Unlock()

	// the op is cancelled by its caller or by a session reset, whichever comes first
	ctx, cancel := context.WithCancel(o.ctx)
	defer cancel()
	stop := context.AfterFunc(session, cancel)
	defer stop()

	err := o.run(ctx)
	if err != nil && !errors.Is(err, ErrValidation) {
		logger.FromContext(ctx, e.log).Warn("cart operation failed",
			zap.String("op", o.name), zap.Error(err))
	}
	return err
}
