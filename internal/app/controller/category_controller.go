package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/maisonvoile/storefront-backend/internal/app/service"
	apperrors "github.com/maisonvoile/storefront-backend/internal/errors"
	"github.com/maisonvoile/storefront-backend/internal/middleware"
)

const maxRootCategories = 100

type CategoryController struct {
	categoryService service.CategoryService
}

func NewCategoryController(categoryService service.CategoryService) *CategoryController {
	return &CategoryController{categoryService: categoryService}
}

type CategoryRequest struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	ParentID    *uint   `json:"parent_id"`
	ClearParent bool    `json:"clear_parent"`
	IsActive    *bool   `json:"is_active"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}

func (r CategoryRequest) input() service.CategoryInput {
	return service.CategoryInput{
		Name:        r.Name,
		Slug:        r.Slug,
		ParentID:    r.ParentID,
		ClearParent: r.ClearParent,
		IsActive:    r.IsActive,
		Description: r.Description,
		ImageURL:    r.ImageURL,
	}
}

// GetCategoryTree returns the active category forest
// GET /api/v1/categories/tree
func (ctrl *CategoryController) GetCategoryTree(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	tree, err := ctrl.categoryService.GetCategoryTree(c.Request.Context())
	if err != nil {
		log.Error("Failed to build category tree", err, nil)
		ctrl.respondReadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": tree,
	})
}

// GetRootCategories returns active top-level categories
// GET /api/v1/categories/roots?limit=N
func (ctrl *CategoryController) GetRootCategories(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "limit must be a non-negative integer")
			return
		}
		limit = min(parsed, maxRootCategories)
	}

	roots, err := ctrl.categoryService.GetRootCategories(c.Request.Context(), limit)
	if err != nil {
		log.Error("Failed to fetch root categories", err, map[string]interface{}{
			"limit": limit,
		})
		ctrl.respondReadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": roots,
		"count":      len(roots),
	})
}

// GetLinearCategories returns the forest flattened depth first
// GET /api/v1/categories/linear
func (ctrl *CategoryController) GetLinearCategories(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	linear, err := ctrl.categoryService.GetLinearCategories(c.Request.Context())
	if err != nil {
		log.Error("Failed to fetch linear categories", err, nil)
		ctrl.respondReadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": linear,
		"count":      len(linear),
	})
}

// GetCategoryBySlug returns one active category with its subtree
// GET /api/v1/categories/:slug
func (ctrl *CategoryController) GetCategoryBySlug(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	slug := c.Param("slug")

	node, err := ctrl.categoryService.GetCategoryBySlug(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, service.ErrCategoryNotFound) {
			apperrors.NotFound(c, apperrors.CategoryNotFound, "Category not found")
			return
		}
		log.Error("Failed to fetch category", err, map[string]interface{}{
			"slug": slug,
		})
		ctrl.respondReadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": node,
	})
}

// CreateCategory adds a category
// POST /api/v1/admin/categories
func (ctrl *CategoryController) CreateCategory(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid category payload")
		return
	}

	category, err := ctrl.categoryService.CreateCategory(c.Request.Context(), req.input())
	if err != nil {
		if ctrl.respondWriteError(c, err) {
			return
		}
		log.Error("Failed to create category", err, map[string]interface{}{
			"name": req.Name,
		})
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, "category")
		return
	}

	log.Info("Category created", map[string]interface{}{
		"category_id": category.ID,
		"slug":        category.Slug,
	})

	c.JSON(http.StatusCreated, gin.H{
		"category": category,
	})
}

// UpdateCategory changes a category; omitted fields stay as they are
// PUT /api/v1/admin/categories/:id
func (ctrl *CategoryController) UpdateCategory(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid category payload")
		return
	}

	category, err := ctrl.categoryService.UpdateCategory(c.Request.Context(), id, req.input())
	if err != nil {
		if ctrl.respondWriteError(c, err) {
			return
		}
		log.Error("Failed to update category", err, map[string]interface{}{
			"category_id": id,
		})
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, "category")
		return
	}

	log.Info("Category updated", map[string]interface{}{
		"category_id": category.ID,
	})

	c.JSON(http.StatusOK, gin.H{
		"category": category,
	})
}

// DeleteCategory removes a category; its children become roots
// DELETE /api/v1/admin/categories/:id
func (ctrl *CategoryController) DeleteCategory(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := ctrl.categoryService.DeleteCategory(c.Request.Context(), id); err != nil {
		if ctrl.respondWriteError(c, err) {
			return
		}
		log.Error("Failed to delete category", err, map[string]interface{}{
			"category_id": id,
		})
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, "category")
		return
	}

	log.Info("Category deleted", map[string]interface{}{
		"category_id": id,
	})
	c.Status(http.StatusNoContent)
}

// respondWriteError maps admin validation errors and reports whether it wrote
// a response.
func (ctrl *CategoryController) respondWriteError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, service.ErrCategoryNotFound):
		apperrors.NotFound(c, apperrors.CategoryNotFound, "Category not found")
	case errors.Is(err, service.ErrParentCategoryNotFound):
		apperrors.BadRequest(c, apperrors.CategoryParentNotFound, "Parent category not found")
	case errors.Is(err, service.ErrSelfParentCategory):
		apperrors.BadRequest(c, apperrors.CategorySelfParent, "A category cannot be its own parent")
	case errors.Is(err, service.ErrCategoryCycle):
		apperrors.BadRequest(c, apperrors.CategoryCycle, "A category cannot be moved under its own descendant")
	case errors.Is(err, service.ErrCategorySlugTaken):
		apperrors.Conflict(c, apperrors.CategorySlugTaken, "Category slug is already in use")
	case errors.Is(err, service.ErrCategoryNameRequired):
		apperrors.BadRequest(c, apperrors.ValidationRequired, "Category name is required")
	default:
		return false
	}
	return true
}

func (ctrl *CategoryController) respondReadError(c *gin.Context, err error) {
	info := apperrors.ParseError(err, "category")
	status := http.StatusInternalServerError
	if info.Code == apperrors.InternalUnavailable {
		status = http.StatusServiceUnavailable
	}
	apperrors.RespondWithError(c, status, info.Code, info.Message)
}

// parseID reads a positive numeric path parameter, answering 400 otherwise.
func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid "+param)
		return 0, false
	}
	return uint(id), true
}
