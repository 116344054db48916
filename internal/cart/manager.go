package cart

import (
	"context"
	"sync"
	"time"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
)

const backgroundFlushTimeout = 10 * time.Second

// guestMerge tracks a guest session whose cart is being or has been folded
// into a user cart. The entry is dropped once the guest cart is deleted.
type guestMerge int

const (
	guestMerging guestMerge = iota
	guestDeletePending
)

// Manager owns every live cart of the process, keyed by owner.
type Manager struct {
	remote   RemoteStore
	guest    GuestStore
	stock    StockLookup
	notifier Notifier
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Reconciler
	merged   map[string]guestMerge

	wg sync.WaitGroup
}

func NewManager(remote RemoteStore, guest GuestStore, stock StockLookup, notifier Notifier) *Manager {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Manager{
		remote:   remote,
		guest:    guest,
		stock:    stock,
		notifier: notifier,
		now:      time.Now,
		sessions: make(map[string]*Reconciler),
		merged:   make(map[string]guestMerge),
	}
}

// Session returns the live cart of the caller, hydrating it on first use.
// A signed-in caller that still carries a guest session absorbs the guest
// cart once; the guest cart is then discarded.
func (m *Manager) Session(ctx context.Context, owner Owner) (*Reconciler, error) {
	rec, err := m.live(ctx, owner)
	if err != nil {
		return nil, err
	}
	if owner.Authenticated() && owner.SessionID != "" {
		m.absorbGuest(ctx, rec, owner.SessionID)
	}
	return rec, nil
}

func (m *Manager) live(ctx context.Context, owner Owner) (*Reconciler, error) {
	key := owner.Key()

	m.mu.Lock()
	rec, ok := m.sessions[key]
	m.mu.Unlock()
	if ok {
		return rec, nil
	}

	// the session id is only needed to address the guest store
	stored := owner
	if stored.Authenticated() {
		stored.SessionID = ""
	}
	fresh := NewReconciler(stored, m.remote, m.guest, m.notifier)
	fresh.now = m.now
	fresh.lastActive = m.now()
	if err := fresh.Hydrate(ctx); err != nil {
		logger.Error("Failed to load cart", err, map[string]interface{}{
			"owner": key,
		})
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[key]; ok {
		return rec, nil
	}
	m.sessions[key] = fresh

	logger.Debug("Cart session opened", map[string]interface{}{
		"owner": key,
		"items": len(fresh.items),
	})
	return fresh, nil
}

// absorbGuest merges the guest cart of sessionID into rec at most once. If
// the guest cart could not be deleted afterwards, later calls only retry the
// delete so lines changed since sign-in are not overwritten again.
func (m *Manager) absorbGuest(ctx context.Context, rec *Reconciler, sessionID string) {
	guestKey := Owner{SessionID: sessionID}.Key()
	m.notifier.Publish(guestKey, Event{
		Type:  EventOwnerChanged,
		Owner: rec.owner.Key(),
		Items: []model.CartLineItem{},
	})

	m.mu.Lock()
	state, claimed := m.merged[sessionID]
	if claimed {
		m.mu.Unlock()
		if state == guestDeletePending {
			m.dropGuestCart(ctx, sessionID)
		}
		return
	}
	m.merged[sessionID] = guestMerging
	guestRec := m.sessions[guestKey]
	delete(m.sessions, guestKey)
	m.mu.Unlock()

	var items []model.CartLineItem
	if guestRec != nil {
		items = guestRec.Items()
		guestRec.detach()
	} else {
		var err error
		items, err = m.guest.Load(ctx, sessionID)
		if err != nil {
			logger.Warn("Failed to load guest cart for merge", map[string]interface{}{
				"session": sessionID,
				"error":   err.Error(),
			})
			m.releaseGuest(sessionID)
			return
		}
		if len(items) == 0 {
			m.releaseGuest(sessionID)
			return
		}
	}

	merged := rec.Merge(items)
	if merged > 0 {
		if _, err := m.refresh(ctx, []*Reconciler{rec}); err != nil {
			logger.Warn("Failed to refresh stock after cart merge", map[string]interface{}{
				"owner": rec.owner.Key(),
				"error": err.Error(),
			})
		}
	}
	m.dropGuestCart(ctx, sessionID)
	m.Schedule(rec)

	logger.Info("Guest cart merged into user cart", map[string]interface{}{
		"owner":  rec.owner.Key(),
		"merged": merged,
	})
}

// dropGuestCart deletes a merged guest cart. On failure the session stays
// marked so the next request retries the delete instead of merging again.
func (m *Manager) dropGuestCart(ctx context.Context, sessionID string) {
	err := m.guest.Delete(ctx, sessionID)

	m.mu.Lock()
	if err != nil {
		m.merged[sessionID] = guestDeletePending
	} else {
		delete(m.merged, sessionID)
	}
	m.mu.Unlock()

	if err != nil {
		logger.Warn("Failed to delete merged guest cart", map[string]interface{}{
			"session": sessionID,
			"error":   err.Error(),
		})
	}
}

func (m *Manager) releaseGuest(sessionID string) {
	m.mu.Lock()
	delete(m.merged, sessionID)
	m.mu.Unlock()
}

// Schedule flushes rec in the background. Failures are logged by Flush and
// the operations stay queued for the next attempt.
func (m *Manager) Schedule(rec *Reconciler) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundFlushTimeout)
		defer cancel()
		_ = rec.Flush(ctx)
	}()
}

// RefreshCart re-clamps one cart against current stock.
func (m *Manager) RefreshCart(ctx context.Context, rec *Reconciler) (int, error) {
	return m.refresh(ctx, []*Reconciler{rec})
}

// RefreshStock re-clamps every live cart against current stock and returns
// the number of lines changed.
func (m *Manager) RefreshStock(ctx context.Context) (int, error) {
	recs := m.snapshot()
	if len(recs) == 0 {
		return 0, nil
	}

	changed, err := m.refresh(ctx, recs)
	if err != nil {
		return 0, err
	}

	logger.Info("Live carts refreshed against stock", map[string]interface{}{
		"carts":   len(recs),
		"changed": changed,
	})
	return changed, nil
}

func (m *Manager) refresh(ctx context.Context, recs []*Reconciler) (int, error) {
	seen := make(map[uint]struct{})
	var productIDs []uint
	for _, rec := range recs {
		for _, item := range rec.Items() {
			if _, ok := seen[item.ProductID]; !ok {
				seen[item.ProductID] = struct{}{}
				productIDs = append(productIDs, item.ProductID)
			}
		}
	}
	if len(productIDs) == 0 {
		return 0, nil
	}

	records, err := m.stock.FindByProductIDs(ctx, productIDs)
	if err != nil {
		logger.Error("Failed to load stock for cart refresh", err, map[string]interface{}{
			"products": len(productIDs),
		})
		return 0, err
	}
	stock := make(map[model.LineKey]int, len(records))
	for _, record := range records {
		stock[model.LineKey{ProductID: record.ProductID, Size: record.Size, Color: record.Color}] = record.Quantity
	}

	changed := 0
	for _, rec := range recs {
		if n := rec.ApplyStock(stock); n > 0 {
			changed += n
			m.Schedule(rec)
		}
	}
	return changed, nil
}

// EvictIdle flushes and forgets carts idle for longer than maxIdle. A cart
// whose flush fails stays live so its queued operations are not lost.
func (m *Manager) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	evicted := 0
	for _, rec := range m.snapshot() {
		if rec.LastActive().After(cutoff) {
			continue
		}
		if err := rec.Flush(ctx); err != nil {
			continue
		}

		m.mu.Lock()
		key := rec.owner.Key()
		// a request may have touched the cart while it was flushing
		if m.sessions[key] == rec && rec.Pending() == 0 && !rec.LastActive().After(cutoff) {
			delete(m.sessions, key)
			evicted++
		}
		m.mu.Unlock()
	}

	if evicted > 0 {
		logger.Info("Idle carts evicted", map[string]interface{}{
			"evicted":   evicted,
			"remaining": m.Len(),
		})
	}
	return evicted
}

// Close waits for background flushes, then flushes every live cart.
func (m *Manager) Close(ctx context.Context) error {
	m.wg.Wait()

	var firstErr error
	for _, rec := range m.snapshot() {
		if err := rec.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Wait blocks until every scheduled background flush has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) snapshot() []*Reconciler {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]*Reconciler, 0, len(m.sessions))
	for _, rec := range m.sessions {
		recs = append(recs, rec)
	}
	return recs
}
