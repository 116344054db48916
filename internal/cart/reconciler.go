package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
)

type opKind int

const (
	opUpsert opKind = iota
	opDelete
	opClear
	opSaveGuest
	opClearGuest
)

func (k opKind) String() string {
	switch k {
	case opUpsert:
		return "upsert"
	case opDelete:
		return "delete"
	case opClear:
		return "clear"
	case opSaveGuest:
		return "save_guest"
	case opClearGuest:
		return "clear_guest"
	default:
		return "unknown"
	}
}

type syncOp struct {
	kind     opKind
	item     model.CartLineItem
	key      model.LineKey
	snapshot []model.CartLineItem
}

// Reconciler is the authoritative cart of one owner. Mutations apply to
// local state immediately, in call order, and queue sync operations that
// Flush later applies to the remote or guest store.
//
// Invariants: no two lines share a LineKey, and no line holds more than its
// MaxQuantity.
type Reconciler struct {
	owner    Owner
	remote   RemoteStore
	guest    GuestStore
	notifier Notifier
	now      func() time.Time

	mu         sync.Mutex
	items      []model.CartLineItem
	open       bool
	loading    bool
	pending    []syncOp
	lastActive time.Time
	detached   bool

	// serializes Flush so queued operations reach the store in order
	flushMu sync.Mutex
}

func NewReconciler(owner Owner, remote RemoteStore, guest GuestStore, notifier Notifier) *Reconciler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Reconciler{
		owner:      owner,
		remote:     remote,
		guest:      guest,
		notifier:   notifier,
		now:        time.Now,
		items:      []model.CartLineItem{},
		lastActive: time.Now(),
	}
}

func (r *Reconciler) Owner() Owner {
	return r.owner
}

// Hydrate replaces local state with the stored cart of the owner.
func (r *Reconciler) Hydrate(ctx context.Context) error {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()

	var (
		items []model.CartLineItem
		err   error
	)
	if r.owner.Authenticated() {
		var rows []model.CartItem
		rows, err = r.remote.FindByUserID(ctx, r.owner.UserID)
		for _, row := range rows {
			items = append(items, row.LineItem())
		}
	} else {
		items, err = r.guest.Load(ctx, r.owner.SessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false
	if err != nil {
		return fmt.Errorf("hydrate cart %s: %w", r.owner.Key(), err)
	}

	r.items = r.items[:0]
	seen := make(map[model.LineKey]bool, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || seen[item.Key()] {
			continue
		}
		seen[item.Key()] = true
		r.items = append(r.items, item)
	}
	return nil
}

// AddItem adds item to the cart. An existing line takes the incoming
// MaxQuantity as its fresh stock snapshot and grows by the incoming quantity,
// clamped to that snapshot. A line already at or above the snapshot is
// rejected with ErrMaxStockReached.
func (r *Reconciler) AddItem(item model.CartLineItem) (model.CartLineItem, error) {
	if item.Quantity <= 0 {
		return model.CartLineItem{}, ErrInvalidQuantity
	}
	if item.MaxQuantity < 0 {
		item.MaxQuantity = 0
	}

	r.mu.Lock()
	r.lastActive = r.now()

	var line model.CartLineItem
	idx := r.indexLocked(item.Key())
	if idx < 0 {
		if item.MaxQuantity == 0 {
			r.mu.Unlock()
			return model.CartLineItem{}, ErrInsufficientStock
		}
		item.Quantity = min(item.Quantity, item.MaxQuantity)
		r.items = append(r.items, item)
		line = item
	} else {
		current := &r.items[idx]
		refreshed := current.MaxQuantity != item.MaxQuantity
		current.MaxQuantity = item.MaxQuantity
		if current.Quantity >= item.MaxQuantity {
			return model.CartLineItem{}, r.rejectAddLocked(idx, refreshed)
		}
		current.Quantity = min(current.Quantity+item.Quantity, item.MaxQuantity)
		if item.Name != "" {
			current.Name = item.Name
			current.Price = item.Price
			current.Image = item.Image
		}
		line = *current
	}

	r.open = true
	r.queueUpsertLocked(line)
	event := r.eventLocked(EventItemAdded, &line)
	r.mu.Unlock()

	r.notifier.Publish(r.owner.Key(), event)
	return line, nil
}

// rejectAddLocked handles an add against a line already at its ceiling. The
// line already carries the incoming snapshot; a refreshed snapshot is queued
// even though the add itself is rejected. When stock fell below the line's
// quantity the line is lowered to it, or dropped when nothing is left.
// Unlocks r.mu.
func (r *Reconciler) rejectAddLocked(idx int, refreshed bool) error {
	current := r.items[idx]
	available := current.MaxQuantity
	if current.Quantity == available {
		if refreshed {
			r.queueUpsertLocked(current)
		}
		r.mu.Unlock()
		return ErrMaxStockReached
	}

	rejection := ErrMaxStockReached
	if available == 0 {
		r.removeLocked(idx)
		rejection = ErrInsufficientStock
	} else {
		r.items[idx].Quantity = available
		r.queueUpsertLocked(r.items[idx])
	}
	event := r.eventLocked(EventStockAdjusted, nil)
	r.mu.Unlock()

	r.notifier.Publish(r.owner.Key(), event)
	return rejection
}

// RemoveItem drops the line with key. Signed-in carts always queue the
// remote delete, even when the line is not held locally. Reports whether a
// local line was removed.
func (r *Reconciler) RemoveItem(key model.LineKey) bool {
	r.mu.Lock()
	r.lastActive = r.now()

	idx := r.indexLocked(key)
	if idx < 0 {
		if r.owner.Authenticated() {
			r.pending = append(r.pending, syncOp{kind: opDelete, key: key})
		}
		r.mu.Unlock()
		return false
	}
	r.removeLocked(idx)
	event := r.eventLocked(EventUpdated, nil)
	r.mu.Unlock()

	r.notifier.Publish(r.owner.Key(), event)
	return true
}

// UpdateQuantity sets the quantity of an existing line. A non-positive
// quantity removes the line; a missing line is a no-op.
func (r *Reconciler) UpdateQuantity(key model.LineKey, quantity int) (bool, error) {
	if quantity <= 0 {
		return r.RemoveItem(key), nil
	}

	r.mu.Lock()
	r.lastActive = r.now()

	idx := r.indexLocked(key)
	if idx < 0 {
		r.mu.Unlock()
		return false, nil
	}
	if quantity > r.items[idx].MaxQuantity {
		r.mu.Unlock()
		return false, ErrInsufficientStock
	}

	r.items[idx].Quantity = quantity
	line := r.items[idx]
	r.queueUpsertLocked(line)
	event := r.eventLocked(EventUpdated, &line)
	r.mu.Unlock()

	r.notifier.Publish(r.owner.Key(), event)
	return true, nil
}

// ClearCart empties the cart. Safe to call repeatedly.
func (r *Reconciler) ClearCart() {
	r.mu.Lock()
	r.lastActive = r.now()
	r.items = []model.CartLineItem{}
	if r.owner.Authenticated() {
		r.pending = append(r.pending, syncOp{kind: opClear})
	} else {
		r.pending = append(r.pending, syncOp{kind: opClearGuest})
	}
	event := r.eventLocked(EventCleared, nil)
	r.mu.Unlock()

	r.notifier.Publish(r.owner.Key(), event)
}

func (r *Reconciler) SetOpen(open bool) {
	r.mu.Lock()
	r.lastActive = r.now()
	r.open = open
	r.mu.Unlock()
}

// Merge folds a guest cart into this one. Guest lines win over lines with
// the same key, clamped to their own stock snapshot; lines only held here
// are kept. Every resulting line is queued for upsert.
func (r *Reconciler) Merge(guest []model.CartLineItem) int {
	r.mu.Lock()
	r.lastActive = r.now()

	merged := 0
	for _, item := range guest {
		item.Quantity = min(item.Quantity, item.MaxQuantity)
		if item.Quantity <= 0 {
			continue
		}
		if idx := r.indexLocked(item.Key()); idx >= 0 {
			r.items[idx] = item
		} else {
			r.items = append(r.items, item)
		}
		merged++
	}
	for _, item := range r.items {
		r.queueUpsertLocked(item)
	}
	event := r.eventLocked(EventUpdated, nil)
	r.mu.Unlock()

	if merged > 0 {
		r.notifier.Publish(r.owner.Key(), event)
	}
	return merged
}

// ApplyStock refreshes every line's MaxQuantity from stock, lowering
// quantities above it and dropping lines whose variant has nothing left.
// Variants missing from stock count as sold out. Returns the number of lines
// changed.
func (r *Reconciler) ApplyStock(stock map[model.LineKey]int) int {
	r.mu.Lock()

	kept := make([]model.CartLineItem, 0, len(r.items))
	var changed []model.CartLineItem
	var dropped []model.LineKey
	for _, item := range r.items {
		available := stock[item.Key()]
		switch {
		case available <= 0:
			dropped = append(dropped, item.Key())
			continue
		case item.MaxQuantity != available || item.Quantity > available:
			item.MaxQuantity = available
			item.Quantity = min(item.Quantity, available)
			changed = append(changed, item)
		}
		kept = append(kept, item)
	}

	if len(changed) == 0 && len(dropped) == 0 {
		r.mu.Unlock()
		return 0
	}

	r.items = kept
	if r.owner.Authenticated() {
		for _, item := range changed {
			r.pending = append(r.pending, syncOp{kind: opUpsert, item: item})
		}
		for _, key := range dropped {
			r.pending = append(r.pending, syncOp{kind: opDelete, key: key})
		}
	} else {
		r.queueGuestSnapshotLocked()
	}
	event := r.eventLocked(EventStockAdjusted, nil)
	r.mu.Unlock()

	r.notifier.Publish(r.owner.Key(), event)
	return len(changed) + len(dropped)
}

// Flush applies queued sync operations in order. It stops at the first
// failure, leaving that operation and everything after it queued for the
// next Flush. Local state is never rolled back.
func (r *Reconciler) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if r.detached {
		r.pending = nil
		r.mu.Unlock()
		return nil
	}
	ops := make([]syncOp, len(r.pending))
	copy(ops, r.pending)
	r.mu.Unlock()

	done := 0
	var flushErr error
	for i, op := range ops {
		// only the newest guest snapshot in a run needs writing
		if op.kind == opSaveGuest && i+1 < len(ops) &&
			(ops[i+1].kind == opSaveGuest || ops[i+1].kind == opClearGuest) {
			done++
			continue
		}
		if err := r.apply(ctx, op); err != nil {
			flushErr = fmt.Errorf("sync cart %s: %w", r.owner.Key(), err)
			logger.Error("Cart sync failed, operations stay queued", err, map[string]interface{}{
				"owner":   r.owner.Key(),
				"op":      op.kind.String(),
				"pending": len(ops) - done,
			})
			break
		}
		done++
	}

	r.mu.Lock()
	if r.detached || done >= len(r.pending) {
		r.pending = nil
	} else {
		r.pending = r.pending[done:]
	}
	r.mu.Unlock()

	if flushErr == nil && done > 0 {
		logger.Debug("Cart synced", map[string]interface{}{
			"owner": r.owner.Key(),
			"ops":   done,
		})
	}
	return flushErr
}

func (r *Reconciler) apply(ctx context.Context, op syncOp) error {
	switch op.kind {
	case opUpsert:
		return r.remote.Upsert(ctx, model.NewCartItem(r.owner.UserID, op.item))
	case opDelete:
		return r.remote.DeleteByKey(ctx, r.owner.UserID, op.key)
	case opClear:
		return r.remote.DeleteByUserID(ctx, r.owner.UserID)
	case opSaveGuest:
		if len(op.snapshot) == 0 {
			return r.guest.Delete(ctx, r.owner.SessionID)
		}
		return r.guest.Save(ctx, r.owner.SessionID, op.snapshot)
	case opClearGuest:
		return r.guest.Delete(ctx, r.owner.SessionID)
	default:
		return fmt.Errorf("unknown sync operation %d", op.kind)
	}
}

// Items returns a copy of the cart lines.
func (r *Reconciler) Items() []model.CartLineItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.snapshotLocked()
	count, total := totals(items)
	return State{
		Owner:     r.owner.Key(),
		Items:     items,
		IsOpen:    r.open,
		IsLoading: r.loading,
		ItemCount: count,
		Total:     total,
		Pending:   len(r.pending),
	}
}

func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Reconciler) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

// detach stops the reconciler from writing to any store again.
// detach stops all further syncing. It waits for a running Flush so no
// write lands after the caller deletes the stored cart.
func (r *Reconciler) detach() {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()
	r.mu.Lock()
	r.detached = true
	r.pending = nil
	r.mu.Unlock()
}

func (r *Reconciler) indexLocked(key model.LineKey) int {
	for i := range r.items {
		if r.items[i].Key() == key {
			return i
		}
	}
	return -1
}

func (r *Reconciler) removeLocked(idx int) {
	key := r.items[idx].Key()
	r.items = append(r.items[:idx:idx], r.items[idx+1:]...)
	if r.owner.Authenticated() {
		r.pending = append(r.pending, syncOp{kind: opDelete, key: key})
	} else {
		r.queueGuestSnapshotLocked()
	}
}

func (r *Reconciler) queueUpsertLocked(item model.CartLineItem) {
	if r.owner.Authenticated() {
		r.pending = append(r.pending, syncOp{kind: opUpsert, item: item})
		return
	}
	r.queueGuestSnapshotLocked()
}

func (r *Reconciler) queueGuestSnapshotLocked() {
	r.pending = append(r.pending, syncOp{kind: opSaveGuest, snapshot: r.snapshotLocked()})
}

func (r *Reconciler) snapshotLocked() []model.CartLineItem {
	items := make([]model.CartLineItem, len(r.items))
	copy(items, r.items)
	return items
}

func (r *Reconciler) eventLocked(kind string, item *model.CartLineItem) Event {
	items := r.snapshotLocked()
	count, _ := totals(items)
	return Event{Type: kind, Item: item, Items: items, Count: count}
}
