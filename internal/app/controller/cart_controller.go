package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/app/service"
	"github.com/maisonvoile/storefront-backend/internal/cart"
	apperrors "github.com/maisonvoile/storefront-backend/internal/errors"
	"github.com/maisonvoile/storefront-backend/internal/middleware"
)

type CartController struct {
	cartService service.CartService
}

func NewCartController(cartService service.CartService) *CartController {
	return &CartController{
		cartService: cartService,
	}
}

type AddToCartRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

type UpdateCartItemRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

type RemoveCartItemRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type SetCartOpenRequest struct {
	IsOpen *bool `json:"is_open" binding:"required"`
}

// cartOwner resolves who the cart belongs to: the signed-in user when the
// request carries a valid token, the guest session otherwise. The guest
// session travels along so a first signed-in request can merge it.
func cartOwner(c *gin.Context) cart.Owner {
	owner := cart.Owner{SessionID: middleware.GetCartSession(c)}
	if userID, ok := middleware.GetUserID(c); ok {
		owner.UserID = userID
	}
	return owner
}

// GetCart returns the caller's cart
// GET /api/v1/cart
func (ctrl *CartController) GetCart(c *gin.Context) {
	owner := cartOwner(c)

	state, err := ctrl.cartService.GetCart(c.Request.Context(), owner)
	if err != nil {
		ctrl.respondError(c, err, owner, "get")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": state,
	})
}

// AddToCart adds a product variant; quantity is clamped to available stock
// POST /api/v1/cart/items
func (ctrl *CartController) AddToCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := cartOwner(c)

	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add to cart request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "product_id is required")
		return
	}

	state, err := ctrl.cartService.AddItem(c.Request.Context(), owner, service.AddToCartInput{
		ProductID: req.ProductID,
		Size:      req.Size,
		Color:     req.Color,
		Quantity:  req.Quantity,
	})
	if err != nil {
		ctrl.respondError(c, err, owner, "add")
		return
	}

	log.Info("Item added to cart", map[string]interface{}{
		"owner":      owner.Key(),
		"product_id": req.ProductID,
		"quantity":   req.Quantity,
	})

	c.JSON(http.StatusOK, gin.H{
		"cart": state,
	})
}

// UpdateCartItem sets the quantity of a line; zero or less removes it
// PUT /api/v1/cart/items
func (ctrl *CartController) UpdateCartItem(c *gin.Context) {
	owner := cartOwner(c)

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "product_id is required")
		return
	}

	key := model.LineKey{ProductID: req.ProductID, Size: req.Size, Color: req.Color}
	state, err := ctrl.cartService.UpdateQuantity(c.Request.Context(), owner, key, req.Quantity)
	if err != nil {
		ctrl.respondError(c, err, owner, "update")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": state,
	})
}

// RemoveCartItem drops a line
// DELETE /api/v1/cart/items
func (ctrl *CartController) RemoveCartItem(c *gin.Context) {
	owner := cartOwner(c)

	var req RemoveCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "product_id is required")
		return
	}

	key := model.LineKey{ProductID: req.ProductID, Size: req.Size, Color: req.Color}
	state, err := ctrl.cartService.RemoveItem(c.Request.Context(), owner, key)
	if err != nil {
		ctrl.respondError(c, err, owner, "remove")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": state,
	})
}

// ClearCart empties the cart
// DELETE /api/v1/cart
func (ctrl *CartController) ClearCart(c *gin.Context) {
	owner := cartOwner(c)

	state, err := ctrl.cartService.ClearCart(c.Request.Context(), owner)
	if err != nil {
		ctrl.respondError(c, err, owner, "clear")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": state,
	})
}

// SetCartOpen records whether the cart drawer is shown
// PUT /api/v1/cart/open
func (ctrl *CartController) SetCartOpen(c *gin.Context) {
	owner := cartOwner(c)

	var req SetCartOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "is_open is required")
		return
	}

	state, err := ctrl.cartService.SetOpen(c.Request.Context(), owner, *req.IsOpen)
	if err != nil {
		ctrl.respondError(c, err, owner, "open")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": state,
	})
}

// FlushCart syncs queued changes now and reports the outcome
// POST /api/v1/cart/flush
func (ctrl *CartController) FlushCart(c *gin.Context) {
	owner := cartOwner(c)

	state, err := ctrl.cartService.Flush(c.Request.Context(), owner)
	if err != nil {
		ctrl.respondError(c, err, owner, "flush")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": state,
	})
}

// RefreshCart re-clamps the cart against current stock
// POST /api/v1/cart/refresh
func (ctrl *CartController) RefreshCart(c *gin.Context) {
	owner := cartOwner(c)

	state, err := ctrl.cartService.RefreshStock(c.Request.Context(), owner)
	if err != nil {
		ctrl.respondError(c, err, owner, "refresh")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": state,
	})
}

func (ctrl *CartController) respondError(c *gin.Context, err error, owner cart.Owner, action string) {
	log := middleware.GetLoggerFromContext(c)
	fields := map[string]interface{}{
		"owner":  owner.Key(),
		"action": action,
	}

	switch {
	case errors.Is(err, cart.ErrMaxStockReached):
		apperrors.Conflict(c, apperrors.CartMaxStockReached, "You already have all available stock of this item in your cart")
	case errors.Is(err, cart.ErrInsufficientStock):
		apperrors.Conflict(c, apperrors.CartInsufficientStock, "Not enough stock for this item")
	case errors.Is(err, cart.ErrInvalidQuantity):
		apperrors.BadRequest(c, apperrors.CartInvalidQuantity, "Quantity must be at least 1")
	case errors.Is(err, service.ErrProductNotFound):
		apperrors.NotFound(c, apperrors.ProductNotFound, "Product not found")
	case errors.Is(err, service.ErrVariantNotFound):
		apperrors.NotFound(c, apperrors.ProductVariantNotFound, "This size and color is not available")
	case errors.Is(err, service.ErrCartUnavailable):
		log.Error("Cart could not be loaded", err, fields)
		apperrors.RespondWithError(c, http.StatusServiceUnavailable, apperrors.CartUnavailable, "Your cart is temporarily unavailable. Please try again shortly")
	case errors.Is(err, service.ErrCartSyncFailed):
		log.Warn("Cart sync failed on request", mergeFields(fields, map[string]interface{}{
			"error": err.Error(),
		}))
		apperrors.RespondWithError(c, http.StatusServiceUnavailable, apperrors.CartSyncFailed, "Your cart was kept but could not be saved yet")
	default:
		log.Error("Cart request failed", err, fields)
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, "cart")
	}
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
