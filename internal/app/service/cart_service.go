package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/cart"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrCartUnavailable wraps failures to load a cart from its backing store.
	ErrCartUnavailable = errors.New("cart unavailable")
	// ErrCartSyncFailed wraps failures of an explicit flush. The cart itself
	// is intact and the operations stay queued.
	ErrCartSyncFailed = errors.New("cart sync failed")
)

// AddToCartInput is what a client may send. Name, price and the stock
// snapshot are always read from the catalog.
type AddToCartInput struct {
	ProductID uint
	Size      string
	Color     string
	Quantity  int
}

type CartService interface {
	GetCart(ctx context.Context, owner cart.Owner) (cart.State, error)
	AddItem(ctx context.Context, owner cart.Owner, input AddToCartInput) (cart.State, error)
	UpdateQuantity(ctx context.Context, owner cart.Owner, key model.LineKey, quantity int) (cart.State, error)
	RemoveItem(ctx context.Context, owner cart.Owner, key model.LineKey) (cart.State, error)
	ClearCart(ctx context.Context, owner cart.Owner) (cart.State, error)
	SetOpen(ctx context.Context, owner cart.Owner, open bool) (cart.State, error)
	Flush(ctx context.Context, owner cart.Owner) (cart.State, error)
	RefreshStock(ctx context.Context, owner cart.Owner) (cart.State, error)
}

type cartService struct {
	manager     *cart.Manager
	productRepo repository.ProductRepository
	stockRepo   repository.StockRepository
}

func NewCartService(manager *cart.Manager, productRepo repository.ProductRepository, stockRepo repository.StockRepository) CartService {
	return &cartService{
		manager:     manager,
		productRepo: productRepo,
		stockRepo:   stockRepo,
	}
}

func (s *cartService) session(ctx context.Context, owner cart.Owner) (*cart.Reconciler, error) {
	rec, err := s.manager.Session(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCartUnavailable, err)
	}
	return rec, nil
}

func (s *cartService) GetCart(ctx context.Context, owner cart.Owner) (cart.State, error) {
	rec, err := s.session(ctx, owner)
	if err != nil {
		return cart.State{}, err
	}
	return rec.State(), nil
}

func (s *cartService) AddItem(ctx context.Context, owner cart.Owner, input AddToCartInput) (cart.State, error) {
	item, err := s.lineItem(ctx, input)
	if err != nil {
		return cart.State{}, err
	}

	rec, err := s.session(ctx, owner)
	if err != nil {
		return cart.State{}, err
	}

	added, err := rec.AddItem(item)
	if err != nil {
		logger.Info("Cart add rejected", map[string]interface{}{
			"owner":      owner.Key(),
			"product_id": input.ProductID,
			"size":       input.Size,
			"color":      input.Color,
			"reason":     err.Error(),
		})
		// a rejection may still have lowered the line to current stock
		s.manager.Schedule(rec)
		return rec.State(), err
	}
	s.manager.Schedule(rec)

	logger.Debug("Cart item added", map[string]interface{}{
		"owner":      owner.Key(),
		"product_id": added.ProductID,
		"quantity":   added.Quantity,
	})
	return rec.State(), nil
}

// lineItem builds the incoming line from the catalog so clients cannot
// choose their own price or stock snapshot.
func (s *cartService) lineItem(ctx context.Context, input AddToCartInput) (model.CartLineItem, error) {
	if input.Quantity <= 0 {
		return model.CartLineItem{}, cart.ErrInvalidQuantity
	}

	product, err := s.productRepo.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.CartLineItem{}, ErrProductNotFound
		}
		return model.CartLineItem{}, err
	}

	size, color := strings.TrimSpace(input.Size), strings.TrimSpace(input.Color)
	stock, err := s.stockRepo.FindVariant(ctx, product.ID, size, color)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.CartLineItem{}, ErrVariantNotFound
		}
		return model.CartLineItem{}, err
	}

	return model.CartLineItem{
		ProductID:   product.ID,
		Name:        product.Name,
		Price:       product.Price,
		Image:       product.ImageURL,
		Size:        size,
		Color:       color,
		Quantity:    input.Quantity,
		MaxQuantity: stock.Quantity,
	}, nil
}

func (s *cartService) UpdateQuantity(ctx context.Context, owner cart.Owner, key model.LineKey, quantity int) (cart.State, error) {
	rec, err := s.session(ctx, owner)
	if err != nil {
		return cart.State{}, err
	}

	changed, err := rec.UpdateQuantity(key, quantity)
	if err != nil {
		return rec.State(), err
	}
	if changed || quantity <= 0 {
		s.manager.Schedule(rec)
	}
	return rec.State(), nil
}

func (s *cartService) RemoveItem(ctx context.Context, owner cart.Owner, key model.LineKey) (cart.State, error) {
	rec, err := s.session(ctx, owner)
	if err != nil {
		return cart.State{}, err
	}

	rec.RemoveItem(key)
	s.manager.Schedule(rec)
	return rec.State(), nil
}

func (s *cartService) ClearCart(ctx context.Context, owner cart.Owner) (cart.State, error) {
	rec, err := s.session(ctx, owner)
	if err != nil {
		return cart.State{}, err
	}

	rec.ClearCart()
	s.manager.Schedule(rec)

	logger.Info("Cart cleared", map[string]interface{}{
		"owner": owner.Key(),
	})
	return rec.State(), nil
}

func (s *cartService) SetOpen(ctx context.Context, owner cart.Owner, open bool) (cart.State, error) {
	rec, err := s.session(ctx, owner)
	if err != nil {
		return cart.State{}, err
	}
	rec.SetOpen(open)
	return rec.State(), nil
}

// Flush syncs the cart now and reports the sync error, if any. The returned
// state is valid either way.
func (s *cartService) Flush(ctx context.Context, owner cart.Owner) (cart.State, error) {
	rec, err := s.session(ctx, owner)
	if err != nil {
		return cart.State{}, err
	}
	if err := rec.Flush(ctx); err != nil {
		return rec.State(), fmt.Errorf("%w: %w", ErrCartSyncFailed, err)
	}
	return rec.State(), nil
}

func (s *cartService) RefreshStock(ctx context.Context, owner cart.Owner) (cart.State, error) {
	rec, err := s.session(ctx, owner)
	if err != nil {
		return cart.State{}, err
	}
	if _, err := s.manager.RefreshCart(ctx, rec); err != nil {
		return rec.State(), err
	}
	return rec.State(), nil
}
