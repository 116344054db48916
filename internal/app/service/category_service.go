package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/cache"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
	"gorm.io/gorm"
)

// DefaultCategoryTTL bounds staleness of cached category reads when no
// invalidation arrives.
const DefaultCategoryTTL = time.Hour

const (
	categoryTreeKey   = "categories:tree"
	categoryLinearKey = "categories:linear"
)

var (
	ErrCategoryNotFound       = errors.New("category not found")
	ErrParentCategoryNotFound = errors.New("parent category not found")
	ErrSelfParentCategory     = errors.New("category cannot be its own parent")
	ErrCategoryCycle          = errors.New("category cannot be moved under its own descendant")
	ErrCategorySlugTaken      = errors.New("category slug already in use")
	ErrCategoryNameRequired   = errors.New("category name is required")
)

// CategoryInput carries admin writes. Nil pointers leave fields unchanged on
// update.
type CategoryInput struct {
	Name        string
	Slug        string
	ParentID    *uint
	ClearParent bool
	IsActive    *bool
	Description *string
	ImageURL    *string
}

type CategoryService interface {
	GetCategoryTree(ctx context.Context) ([]*model.CategoryNode, error)
	GetRootCategories(ctx context.Context, limit int) ([]model.Category, error)
	GetLinearCategories(ctx context.Context) ([]*model.CategoryNode, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*model.CategoryNode, error)
	CreateCategory(ctx context.Context, input CategoryInput) (*model.Category, error)
	UpdateCategory(ctx context.Context, id uint, input CategoryInput) (*model.Category, error)
	DeleteCategory(ctx context.Context, id uint) error
}

type categoryService struct {
	repo  repository.CategoryRepository
	cache cache.TagCache
	ttl   time.Duration
}

func NewCategoryService(repo repository.CategoryRepository, tagCache cache.TagCache, ttl time.Duration) CategoryService {
	if ttl <= 0 || ttl > DefaultCategoryTTL {
		ttl = DefaultCategoryTTL
	}
	return &categoryService{
		repo:  repo,
		cache: tagCache,
		ttl:   ttl,
	}
}

// cached reads key into dest, or runs load, stores its result under the
// categories tag and copies it into dest. Keys carry the tag generation, so a
// load that races an invalidation is stored where no later read looks.
// Cache faults only cost a reload; load faults propagate.
func cached[T any](ctx context.Context, s *categoryService, key string, load func() (T, error)) (T, error) {
	var value T
	gen, err := s.cache.Generation(ctx, cache.TagCategories)
	if err != nil {
		logger.Warn("Category cache generation unavailable, loading from database", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return load()
	}
	key = fmt.Sprintf("%s@%d", key, gen)

	found, err := s.cache.Get(ctx, key, &value)
	if err != nil {
		logger.Warn("Category cache read failed, loading from database", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	if found {
		return value, nil
	}

	value, err = load()
	if err != nil {
		return value, err
	}

	if err := s.cache.Set(ctx, key, value, s.ttl, cache.TagCategories); err != nil {
		logger.Warn("Failed to cache categories", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	return value, nil
}

func (s *categoryService) GetCategoryTree(ctx context.Context) ([]*model.CategoryNode, error) {
	return cached(ctx, s, categoryTreeKey, func() ([]*model.CategoryNode, error) {
		categories, err := s.repo.FindActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		sortByName(categories)
		tree := BuildTree(categories)

		logger.Info("Category tree rebuilt", map[string]interface{}{
			"categories": len(categories),
			"roots":      len(tree),
		})
		return tree, nil
	})
}

func (s *categoryService) GetRootCategories(ctx context.Context, limit int) ([]model.Category, error) {
	if limit < 0 {
		limit = 0
	}
	key := fmt.Sprintf("categories:roots:%d", limit)
	return cached(ctx, s, key, func() ([]model.Category, error) {
		roots, err := s.repo.FindActiveRoots(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("load root categories: %w", err)
		}
		return roots, nil
	})
}

func (s *categoryService) GetLinearCategories(ctx context.Context) ([]*model.CategoryNode, error) {
	return cached(ctx, s, categoryLinearKey, func() ([]*model.CategoryNode, error) {
		categories, err := s.repo.FindActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		return LinearCategories(categories), nil
	})
}

func (s *categoryService) GetCategoryBySlug(ctx context.Context, slug string) (*model.CategoryNode, error) {
	tree, err := s.GetCategoryTree(ctx)
	if err != nil {
		return nil, err
	}
	node := FindNode(tree, slug)
	if node == nil {
		return nil, ErrCategoryNotFound
	}
	return node, nil
}

func (s *categoryService) CreateCategory(ctx context.Context, input CategoryInput) (*model.Category, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrCategoryNameRequired
	}
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}

	if input.ParentID != nil {
		if _, err := s.repo.FindByID(ctx, *input.ParentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrParentCategoryNotFound
			}
			return nil, err
		}
	}
	if err := s.ensureSlugFree(ctx, slug, 0); err != nil {
		return nil, err
	}

	category := &model.Category{
		Name:        name,
		Slug:        slug,
		ParentID:    input.ParentID,
		IsActive:    true,
		Description: input.Description,
		ImageURL:    input.ImageURL,
	}
	if input.IsActive != nil {
		category.IsActive = *input.IsActive
	}

	if err := s.repo.Create(ctx, category); err != nil {
		return nil, err
	}
	s.invalidate(ctx, "create", category.ID)

	logger.Info("Category created", map[string]interface{}{
		"category_id": category.ID,
		"slug":        category.Slug,
	})
	return category, nil
}

func (s *categoryService) UpdateCategory(ctx context.Context, id uint, input CategoryInput) (*model.Category, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		category.Name = name
	}
	if slug := Slugify(input.Slug); slug != "" && slug != category.Slug {
		if err := s.ensureSlugFree(ctx, slug, id); err != nil {
			return nil, err
		}
		category.Slug = slug
	}
	if input.ClearParent {
		category.ParentID = nil
	} else if input.ParentID != nil {
		if err := s.checkParent(ctx, id, *input.ParentID); err != nil {
			return nil, err
		}
		category.ParentID = input.ParentID
	}
	if input.IsActive != nil {
		category.IsActive = *input.IsActive
	}
	if input.Description != nil {
		category.Description = input.Description
	}
	if input.ImageURL != nil {
		category.ImageURL = input.ImageURL
	}

	if err := s.repo.Update(ctx, category); err != nil {
		return nil, err
	}
	s.invalidate(ctx, "update", id)

	logger.Info("Category updated", map[string]interface{}{
		"category_id": id,
	})
	return category, nil
}

func (s *categoryService) DeleteCategory(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	s.invalidate(ctx, "delete", id)

	logger.Info("Category deleted", map[string]interface{}{
		"category_id": id,
	})
	return nil
}

// checkParent rejects a parent that is the category itself or one of its
// descendants, across active and inactive categories.
func (s *categoryService) checkParent(ctx context.Context, id, parentID uint) error {
	if parentID == id {
		return ErrSelfParentCategory
	}

	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return err
	}
	parents := make(map[uint]*uint, len(all))
	for _, c := range all {
		parents[c.ID] = c.ParentID
	}
	if _, ok := parents[parentID]; !ok {
		return ErrParentCategoryNotFound
	}

	seen := make(map[uint]bool)
	for cur := &parentID; cur != nil && !seen[*cur]; cur = parents[*cur] {
		if *cur == id {
			return ErrCategoryCycle
		}
		seen[*cur] = true
	}
	return nil
}

func (s *categoryService) ensureSlugFree(ctx context.Context, slug string, exceptID uint) error {
	taken, err := s.repo.SlugExists(ctx, slug, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return ErrCategorySlugTaken
	}
	return nil
}

// invalidate broadcasts the categories tag. A failed broadcast leaves reads
// stale for at most one ttl, so it is logged rather than returned.
func (s *categoryService) invalidate(ctx context.Context, reason string, id uint) {
	if err := s.cache.InvalidateTag(ctx, cache.TagCategories); err != nil {
		logger.Error("Failed to invalidate category cache", err, map[string]interface{}{
			"reason":      reason,
			"category_id": id,
		})
	}
}

// Slugify lowercases s and joins its letter/digit runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
