package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maisonvoile/storefront-backend/config"
	"github.com/maisonvoile/storefront-backend/internal/app/controller"
	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/middleware"
)

type Router struct {
	categoryController   *controller.CategoryController
	cartController       *controller.CartController
	cartEventsController *controller.CartEventsController
	uploadController     *controller.UploadController
	authMiddleware       *middleware.AuthMiddleware
	config               *config.Config
}

func NewRouter(
	categoryController *controller.CategoryController,
	cartController *controller.CartController,
	cartEventsController *controller.CartEventsController,
	uploadController *controller.UploadController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		categoryController:   categoryController,
		cartController:       cartController,
		cartEventsController: cartEventsController,
		uploadController:     uploadController,
		authMiddleware:       authMiddleware,
		config:               cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Storefront API is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		categories := v1.Group("/categories")
		{
			categories.GET("/tree", r.categoryController.GetCategoryTree)
			categories.GET("/roots", r.categoryController.GetRootCategories)
			categories.GET("/linear", r.categoryController.GetLinearCategories)
			categories.GET("/:slug", r.categoryController.GetCategoryBySlug)
		}

		cart := v1.Group("/cart")
		cart.Use(
			r.authMiddleware.OptionalAuthenticate(),
			middleware.CartSession(r.config.Cart.SessionCookie, r.config.Cart.GuestTTL, r.config.Server.Environment == "production"),
		)
		{
			cart.GET("", r.cartController.GetCart)
			cart.DELETE("", r.cartController.ClearCart)
			cart.POST("/items", r.cartController.AddToCart)
			cart.PUT("/items", r.cartController.UpdateCartItem)
			cart.DELETE("/items", r.cartController.RemoveCartItem)
			cart.PUT("/open", r.cartController.SetCartOpen)
			cart.POST("/flush", r.cartController.FlushCart)
			cart.POST("/refresh", r.cartController.RefreshCart)
			cart.GET("/events", r.cartEventsController.Stream)
		}

		admin := v1.Group("/admin")
		admin.Use(r.authMiddleware.Authenticate(), r.authMiddleware.RequireRole(model.RoleAdmin))
		{
			admin.POST("/categories", r.categoryController.CreateCategory)
			admin.PUT("/categories/:id", r.categoryController.UpdateCategory)
			admin.DELETE("/categories/:id", r.categoryController.DeleteCategory)
			admin.POST("/uploads/category-image", r.uploadController.PresignCategoryImage)
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+middleware.CartSessionHeader+", "+middleware.RequestIDHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", middleware.CartSessionHeader+", "+middleware.RequestIDHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
