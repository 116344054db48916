package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/cart"
	"github.com/maisonvoile/storefront-backend/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerFixture struct {
	scheduler *CartScheduler
	manager   *cart.Manager
	carts     repository.CartRepository
	stock     repository.StockRepository
}

func setupSchedulerTest(t *testing.T, cfg CartJobsConfig) *schedulerFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	f := &schedulerFixture{
		carts: repository.NewCartRepository(testDB),
		stock: repository.NewStockRepository(testDB),
	}
	f.manager = cart.NewManager(f.carts, cart.NewMemoryGuestStore(), f.stock, nil)
	f.scheduler = NewCartScheduler(f.manager, f.carts, cfg)
	t.Cleanup(f.manager.Wait)
	return f
}

func item(productID uint, size, color string, quantity, maxQuantity int) model.CartLineItem {
	return model.CartLineItem{
		ProductID:   productID,
		Name:        "Chino",
		Price:       decimal.NewFromInt(70),
		Size:        size,
		Color:       color,
		Quantity:    quantity,
		MaxQuantity: maxQuantity,
	}
}

func TestCartScheduler_ReconcileStock(t *testing.T) {
	f := setupSchedulerTest(t, CartJobsConfig{})
	ctx := context.Background()

	require.NoError(t, f.stock.Upsert(ctx, &model.StockRecord{ProductID: 1, Size: "32", Color: "Sand", Quantity: 4}))

	// a live cart
	rec, err := f.manager.Session(ctx, cart.Owner{UserID: 1})
	require.NoError(t, err)
	_, err = rec.AddItem(item(1, "32", "Sand", 4, 4))
	require.NoError(t, err)
	require.NoError(t, rec.Flush(ctx))

	// a stored cart nobody has loaded since the last restart
	require.NoError(t, f.carts.Upsert(ctx, model.NewCartItem(2, item(1, "32", "Sand", 3, 4))))

	require.NoError(t, f.stock.Upsert(ctx, &model.StockRecord{ProductID: 1, Size: "32", Color: "Sand", Quantity: 2}))

	f.scheduler.ReconcileStock()
	f.manager.Wait()

	items := rec.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, items[0].MaxQuantity)

	stored, err := f.carts.FindByUserID(ctx, 2)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].Quantity)
	assert.Equal(t, 2, stored[0].MaxQuantity)
}

func TestCartScheduler_EvictIdle(t *testing.T) {
	f := setupSchedulerTest(t, CartJobsConfig{MaxIdle: 0})
	ctx := context.Background()

	_, err := f.manager.Session(ctx, cart.Owner{SessionID: "idle-guest"})
	require.NoError(t, err)
	require.Equal(t, 1, f.manager.Len())

	time.Sleep(5 * time.Millisecond)
	f.scheduler.EvictIdle()
	assert.Equal(t, 0, f.manager.Len())
}

func TestCartScheduler_StartRejectsBadSpec(t *testing.T) {
	f := setupSchedulerTest(t, CartJobsConfig{
		StockReconcileSpec: "not a cron spec",
		EvictionSpec:       "@every 10m",
	})
	assert.Error(t, f.scheduler.Start())
}

func TestCartScheduler_StartStop(t *testing.T) {
	f := setupSchedulerTest(t, CartJobsConfig{
		StockReconcileSpec: "@every 5m",
		EvictionSpec:       "@every 10m",
		MaxIdle:            30 * time.Minute,
	})
	require.NoError(t, f.scheduler.Start())
	assert.Len(t, f.scheduler.cron.Entries(), 2)
	f.scheduler.Stop()
}
