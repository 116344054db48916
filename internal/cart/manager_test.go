package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/db"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type managerFixture struct {
	manager  *Manager
	conn     *gorm.DB
	carts    repository.CartRepository
	stock    repository.StockRepository
	guest    *MemoryGuestStore
	notifier *recordingNotifier
}

func setupManagerTest(t *testing.T) *managerFixture {
	conn, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(conn)
	})

	f := &managerFixture{
		conn:     conn,
		carts:    repository.NewCartRepository(conn),
		stock:    repository.NewStockRepository(conn),
		guest:    NewMemoryGuestStore(),
		notifier: &recordingNotifier{},
	}
	f.manager = NewManager(f.carts, f.guest, f.stock, f.notifier)
	return f
}

func (f *managerFixture) setStock(t *testing.T, productID uint, size, color string, quantity int) {
	t.Helper()
	require.NoError(t, f.stock.Upsert(context.Background(), &model.StockRecord{
		ProductID: productID,
		Size:      size,
		Color:     color,
		Quantity:  quantity,
	}))
}

func TestManager_GuestCartRoundTrip(t *testing.T) {
	f := setupManagerTest(t)
	ctx := context.Background()
	owner := Owner{SessionID: "guest-1"}

	rec, err := f.manager.Session(ctx, owner)
	require.NoError(t, err)
	_, err = rec.AddItem(line(1, "M", "Black", 2, 5))
	require.NoError(t, err)
	f.manager.Schedule(rec)
	f.manager.Wait()

	stored, err := f.guest.Load(ctx, "guest-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].Quantity)

	again, err := f.manager.Session(ctx, owner)
	require.NoError(t, err)
	assert.Same(t, rec, again)

	// a fresh process hydrates from the guest store
	other := NewManager(f.carts, f.guest, f.stock, nil)
	hydrated, err := other.Session(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, rec.Items(), hydrated.Items())
}

func TestManager_SignedInCartPersists(t *testing.T) {
	f := setupManagerTest(t)
	ctx := context.Background()
	owner := Owner{UserID: 11}

	rec, err := f.manager.Session(ctx, owner)
	require.NoError(t, err)
	_, err = rec.AddItem(line(1, "M", "Black", 2, 5))
	require.NoError(t, err)
	_, err = rec.AddItem(line(1, "M", "Black", 1, 5))
	require.NoError(t, err)
	require.NoError(t, rec.Flush(ctx))

	rows, err := f.carts.FindByUserID(ctx, 11)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Quantity)
	assert.Equal(t, 5, rows[0].MaxQuantity)

	rec.ClearCart()
	require.NoError(t, rec.Flush(ctx))
	rows, err = f.carts.FindByUserID(ctx, 11)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestManager_MergeOnLogin(t *testing.T) {
	f := setupManagerTest(t)
	ctx := context.Background()

	f.setStock(t, 1, "M", "Black", 2)
	f.setStock(t, 2, "S", "Ecru", 5)
	f.setStock(t, 3, "L", "Navy", 5)

	// server cart from another device
	require.NoError(t, f.carts.Upsert(ctx, model.NewCartItem(11, line(1, "M", "Black", 1, 5))))
	require.NoError(t, f.carts.Upsert(ctx, model.NewCartItem(11, line(3, "L", "Navy", 2, 5))))

	// guest cart built before signing in
	guestRec, err := f.manager.Session(ctx, Owner{SessionID: "guest-1"})
	require.NoError(t, err)
	_, err = guestRec.AddItem(line(1, "M", "Black", 4, 5))
	require.NoError(t, err)
	_, err = guestRec.AddItem(line(2, "S", "Ecru", 1, 5))
	require.NoError(t, err)
	require.NoError(t, guestRec.Flush(ctx))

	rec, err := f.manager.Session(ctx, Owner{UserID: 11, SessionID: "guest-1"})
	require.NoError(t, err)
	f.manager.Wait()

	items := rec.Items()
	require.Len(t, items, 3)
	byKey := make(map[model.LineKey]model.CartLineItem)
	for _, item := range items {
		byKey[item.Key()] = item
	}
	assert.Equal(t, 2, byKey[blackM].Quantity, "guest quantity wins, clamped to fresh stock")
	assert.Equal(t, 2, byKey[blackM].MaxQuantity)
	assert.Equal(t, 2, byKey[model.LineKey{ProductID: 3, Size: "L", Color: "Navy"}].Quantity)
	assert.Equal(t, 1, byKey[model.LineKey{ProductID: 2, Size: "S", Color: "Ecru"}].Quantity)

	rows, err := f.carts.FindByUserID(ctx, 11)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	stored, err := f.guest.Load(ctx, "guest-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, 1, f.manager.Len(), "guest session dropped")

	// the merge happens once
	again, err := f.manager.Session(ctx, Owner{UserID: 11, SessionID: "guest-1"})
	require.NoError(t, err)
	assert.Len(t, again.Items(), 3)
}

func TestManager_RefreshStock(t *testing.T) {
	f := setupManagerTest(t)
	ctx := context.Background()

	f.setStock(t, 1, "M", "Black", 5)
	f.setStock(t, 2, "S", "Ecru", 5)

	user, err := f.manager.Session(ctx, Owner{UserID: 11})
	require.NoError(t, err)
	_, err = user.AddItem(line(1, "M", "Black", 4, 5))
	require.NoError(t, err)
	guest, err := f.manager.Session(ctx, Owner{SessionID: "guest-1"})
	require.NoError(t, err)
	_, err = guest.AddItem(line(2, "S", "Ecru", 3, 5))
	require.NoError(t, err)

	f.setStock(t, 1, "M", "Black", 1)
	f.setStock(t, 2, "S", "Ecru", 0)

	changed, err := f.manager.RefreshStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	f.manager.Wait()

	require.Len(t, user.Items(), 1)
	assert.Equal(t, 1, user.Items()[0].Quantity)
	assert.Empty(t, guest.Items())

	rows, err := f.carts.FindByUserID(ctx, 11)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Quantity)
}

func TestManager_EvictIdle(t *testing.T) {
	f := setupManagerTest(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.manager.now = func() time.Time { return now }

	idle, err := f.manager.Session(ctx, Owner{SessionID: "idle"})
	require.NoError(t, err)
	_, err = idle.AddItem(line(1, "M", "Black", 1, 5))
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	active, err := f.manager.Session(ctx, Owner{SessionID: "active"})
	require.NoError(t, err)
	active.SetOpen(true)

	evicted := f.manager.EvictIdle(ctx, 10*time.Minute)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, f.manager.Len())

	// queued changes were flushed before eviction
	stored, err := f.guest.Load(ctx, "idle")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestManager_SignInNotifiesGuestStream(t *testing.T) {
	f := setupManagerTest(t)
	ctx := context.Background()

	_, err := f.manager.Session(ctx, Owner{UserID: 11, SessionID: "guest-1"})
	require.NoError(t, err)
	f.manager.Wait()

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.NotEmpty(t, f.notifier.events)
	assert.Equal(t, "guest:guest-1", f.notifier.owners[0])
	assert.Equal(t, EventOwnerChanged, f.notifier.events[0].Type)
	assert.Equal(t, "user:11", f.notifier.events[0].Owner)
}

// stuckGuestStore refuses deletes until unstuck
type stuckGuestStore struct {
	*MemoryGuestStore
	mu    sync.Mutex
	stuck bool
}

func (s *stuckGuestStore) setStuck(stuck bool) {
	s.mu.Lock()
	s.stuck = stuck
	s.mu.Unlock()
}

func (s *stuckGuestStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	stuck := s.stuck
	s.mu.Unlock()
	if stuck {
		return errors.New("redis unavailable")
	}
	return s.MemoryGuestStore.Delete(ctx, sessionID)
}

func TestManager_MergeOnLoginRunsOnceWhenGuestDeleteFails(t *testing.T) {
	f := setupManagerTest(t)
	ctx := context.Background()
	f.setStock(t, 1, "M", "Black", 5)
	f.setStock(t, 2, "S", "Ecru", 5)

	guest := &stuckGuestStore{MemoryGuestStore: NewMemoryGuestStore(), stuck: true}
	require.NoError(t, guest.Save(ctx, "guest-1", []model.CartLineItem{
		line(1, "M", "Black", 3, 5),
		line(2, "S", "Ecru", 1, 5),
	}))
	m := NewManager(f.carts, guest, f.stock, nil)
	owner := Owner{UserID: 11, SessionID: "guest-1"}

	rec, err := m.Session(ctx, owner)
	require.NoError(t, err)
	m.Wait()
	require.Len(t, rec.Items(), 2)

	// the user edits the merged cart while the guest cart is still stored
	ecru := model.LineKey{ProductID: 2, Size: "S", Color: "Ecru"}
	rec.RemoveItem(ecru)
	_, err = rec.UpdateQuantity(blackM, 1)
	require.NoError(t, err)

	again, err := m.Session(ctx, owner)
	require.NoError(t, err)
	m.Wait()
	assert.Same(t, rec, again)
	items := again.Items()
	require.Len(t, items, 1, "removed line stays removed")
	assert.Equal(t, 1, items[0].Quantity)

	stored, err := guest.Load(ctx, "guest-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// the delete is retried on the next request once the store recovers
	guest.setStuck(false)
	_, err = m.Session(ctx, owner)
	require.NoError(t, err)
	m.Wait()

	stored, err = guest.Load(ctx, "guest-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Len(t, rec.Items(), 1)
	assert.Equal(t, 1, rec.Items()[0].Quantity)
}

type brokenGuestStore struct {
	MemoryGuestStore
}

func (*brokenGuestStore) Load(context.Context, string) ([]model.CartLineItem, error) {
	return nil, errors.New("redis unavailable")
}

func TestManager_HydrationFailurePropagates(t *testing.T) {
	f := setupManagerTest(t)
	m := NewManager(f.carts, &brokenGuestStore{}, f.stock, nil)

	_, err := m.Session(context.Background(), Owner{SessionID: "guest-1"})
	require.Error(t, err)
	assert.Zero(t, m.Len())
}

func TestRedisGuestStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	store := NewRedisGuestStore(client, time.Hour)
	ctx := context.Background()

	items, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, store.Save(ctx, "s1", []model.CartLineItem{line(1, "M", "Black", 2, 5)}))
	assert.True(t, mr.Exists("cart:guest:s1"))
	assert.Equal(t, time.Hour, mr.TTL("cart:guest:s1"))

	items, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "39.9", items[0].Price.String())

	mr.FastForward(2 * time.Hour)
	items, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, store.Save(ctx, "s1", []model.CartLineItem{line(1, "M", "Black", 1, 5)}))
	require.NoError(t, store.Delete(ctx, "s1"))
	assert.False(t, mr.Exists("cart:guest:s1"))
}
