package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cart-sync/internal/domain"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// fetchToken captures the version markers current when a fetch was issued.
type fetchToken struct {
	epoch       uint64
	mutationSeq uint64
	seq         uint64
}

type fetchResult struct {
	items     domain.CartSnapshot
	itemsErr  error
	totals    domain.CartTotals
	totalsErr error
}

func (r fetchResult) err() error {
	return errors.Join(r.itemsErr, r.totalsErr)
}

func (e *Engine) issueFetchLocked() fetchToken {
	e.fetchSeq++
	return fetchToken{epoch: e.epoch, mutationSeq: e.mutationSeq, seq: e.fetchSeq}
}

// currentLocked reports whether nothing invalidated tok since it was issued.
func (e *Engine) currentLocked(tok fetchToken) bool {
	return tok.epoch == e.epoch && tok.mutationSeq == e.mutationSeq
}

// fetchBoth runs the two independent reads concurrently and waits for both.
func (e *Engine) fetchBoth(ctx context.Context) fetchResult {
	var (
		g   errgroup.Group
		res fetchResult
	)
	g.Go(func() error {
		res.items, res.itemsErr = e.gw.FetchItems(ctx)
		return res.itemsErr
	})
	g.Go(func() error {
		res.totals, res.totalsErr = e.gw.FetchTotals(ctx)
		return res.totalsErr
	})
	_ = g.Wait()
	return res
}

// beginSync marks a mutation in flight and returns the epoch it belongs to.
func (e *Engine) beginSync() uint64 {
	e.mu.Lock()
	e.mutating = true
	e.status = domain.SyncStatusSyncing
	epoch := e.epoch
	st := e.stateLocked()
	e.mu.Unlock()

	e.notify(st)
	return epoch
}

// fail records a failed remote call without touching snapshot or totals.
func (e *Engine) fail(epoch uint64, err error) error {
	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return ErrReset
	}
	e.mutating = false
	e.status = domain.SyncStatusError
	e.lastErr = err
	st := e.stateLocked()
	e.mu.Unlock()

	e.notify(st)
	e.checkSession(err)
	return err
}

func (e *Engine) checkSession(err error) {
	if errors.Is(err, gateway.ErrUnauthenticated) && e.opts.OnUnauthenticated != nil {
		go e.opts.OnUnauthenticated(err)
	}
}

// mutateRemote runs one remote mutation and, only if it succeeded, refetches
// items and totals.
func (e *Engine) mutateRemote(ctx context.Context, call func(ctx context.Context) error) error {
	epoch := e.beginSync()

	if err := call(ctx); err != nil {
		return e.fail(epoch, err)
	}

	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return ErrReset
	}
	// the backend changed: reads issued before this point are stale
	e.mutationSeq++
	tok := e.issueFetchLocked()
	e.mu.Unlock()

	return e.refetch(ctx, tok, true)
}

// refetch replaces snapshot and totals with fresh backend data. A partial
// result applies the half that succeeded and leaves the engine in
// SyncStatusError; the other half keeps its last-known-good value.
func (e *Engine) refetch(ctx context.Context, tok fetchToken, ownsStatus bool) error {
	res := e.fetchBoth(ctx)
	err := res.err()

	e.mu.Lock()
	if tok.epoch != e.epoch {
		e.mu.Unlock()
		return ErrReset
	}
	if !e.currentLocked(tok) {
		// superseded by a mutation whose own refetch is authoritative
		e.mu.Unlock()
		e.log.Debug("discarding stale cart fetch", zap.Uint64("fetch_seq", tok.seq))
		return nil
	}

	if res.itemsErr == nil && tok.seq > e.snapshot.FetchedAt {
		res.items.FetchedAt = tok.seq
		e.snapshot = res.items
	}
	var applied *domain.CartTotals
	if res.totalsErr == nil && (e.totals == nil || tok.seq > e.totals.FetchedAt) {
		res.totals.FetchedAt = tok.seq
		e.totals = &res.totals
		e.reconcileDiscountLocked()
		applied = &res.totals
	}

	if ownsStatus || !e.mutating {
		e.mutating = false
		if err != nil {
			e.status = domain.SyncStatusError
			e.lastErr = err
		} else {
			e.status = domain.SyncStatusIdle
			e.lastErr = nil
		}
	}
	st := e.stateLocked()
	e.mu.Unlock()

	if applied != nil {
		e.verifyTotals(*applied)
	}
	e.notify(st)
	if err != nil {
		e.checkSession(err)
	}
	return err
}

// reconcileDiscountLocked keeps the applied code only while the backend still
// reports a discount.
func (e *Engine) reconcileDiscountLocked() {
	if e.discount == nil {
		return
	}
	if e.totals == nil || e.totals.Discount == nil {
		e.log.Info("discount no longer reported by backend, dropping it",
			zap.String("code", e.discount.Code))
		e.discount = nil
		return
	}
	e.discount.AppliedAmount = *e.totals.Discount
}

func (e *Engine) verifyTotals(t domain.CartTotals) {
	if err := t.Verify(); err != nil {
		e.log.Warn("backend totals are inconsistent", zap.Error(err))
	}
}

// Initialize loads items and totals. Unless both reads succeed nothing is
// applied and the engine reports SyncStatusError.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.submit(ctx, "initialize", func(ctx context.Context) error {
		epoch := e.beginSync()

		e.mu.Lock()
		tok := e.issueFetchLocked()
		e.mu.Unlock()

		res := e.fetchBoth(ctx)
		if err := res.err(); err != nil {
			return e.fail(epoch, err)
		}

		e.mu.Lock()
		if !e.currentLocked(tok) {
			e.mu.Unlock()
			return ErrReset
		}
		// a refresh issued later may already have landed
		if tok.seq > e.snapshot.FetchedAt {
			res.items.FetchedAt = tok.seq
			e.snapshot = res.items
		}
		var applied *domain.CartTotals
		if e.totals == nil || tok.seq > e.totals.FetchedAt {
			res.totals.FetchedAt = tok.seq
			e.totals = &res.totals
			e.reconcileDiscountLocked()
			applied = &res.totals
		}
		e.mutating = false
		e.status = domain.SyncStatusIdle
		e.lastErr = nil
		st := e.stateLocked()
		e.mu.Unlock()

		if applied != nil {
			e.verifyTotals(*applied)
		}
		e.notify(st)
		return nil
	})
}

// Refresh re-reads items and totals without queueing behind mutations.
// Concurrent calls share one round trip. A refresh overtaken by a mutation
// is dropped silently since the mutation refetches on its own.
func (e *Engine) Refresh(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}

	e.mu.Lock()
	key := fmt.Sprintf("refresh-%d", e.epoch)
	e.mu.Unlock()

	// one flight per epoch; callers after Reset start their own
	_, err, _ := e.sfg.Do(key, func() (interface{}, error) {
		e.mu.Lock()
		tok := e.issueFetchLocked()
		session := e.sessionCtx
		e.mu.Unlock()

		rctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(session, cancel)
		defer stop()

		return nil, e.refetch(rctx, tok, false)
	})
	return err
}
