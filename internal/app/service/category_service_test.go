package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/cache"
	"github.com/maisonvoile/storefront-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCategoryServiceTest(t *testing.T) (CategoryService, *gorm.DB) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	svc := NewCategoryService(repository.NewCategoryRepository(testDB), cache.NewMemoryTagCache(), time.Hour)
	return svc, testDB
}

func seedCategory(t *testing.T, conn *gorm.DB, name string, parentID *uint, active bool) *model.Category {
	c := &model.Category{Name: name, Slug: Slugify(name), ParentID: parentID, IsActive: true}
	require.NoError(t, conn.Create(c).Error)
	if !active {
		// gorm skips zero-value bools on create when a default is set
		require.NoError(t, conn.Model(c).Update("is_active", false).Error)
		c.IsActive = false
	}
	return c
}

func TestCategoryService_GetCategoryTree(t *testing.T) {
	svc, conn := setupCategoryServiceTest(t)
	ctx := context.Background()

	tees := seedCategory(t, conn, "Tees", nil, true)
	seedCategory(t, conn, "Oversized", &tees.ID, true)
	seedCategory(t, conn, "Hoodies", nil, true)

	tree, err := svc.GetCategoryTree(ctx)
	require.NoError(t, err)

	// roots come back ordered by name
	require.Len(t, tree, 2)
	assert.Equal(t, "Hoodies", tree[0].Name)
	assert.Empty(t, tree[0].Children)
	assert.Equal(t, "Tees", tree[1].Name)
	require.Len(t, tree[1].Children, 1)
	assert.Equal(t, "Oversized", tree[1].Children[0].Name)
}

func TestCategoryService_InactiveParentSurfacesChildAsRoot(t *testing.T) {
	svc, conn := setupCategoryServiceTest(t)

	archive := seedCategory(t, conn, "Archive", nil, false)
	seedCategory(t, conn, "Archive Tees", &archive.ID, true)

	tree, err := svc.GetCategoryTree(context.Background())
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "Archive Tees", tree[0].Name)
}

func TestCategoryService_ReadsAreCachedUntilInvalidated(t *testing.T) {
	svc, conn := setupCategoryServiceTest(t)
	ctx := context.Background()

	seedCategory(t, conn, "Tees", nil, true)

	tree, err := svc.GetCategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	roots, err := svc.GetRootCategories(ctx, 0)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	// a write behind the service's back stays invisible while cached
	seedCategory(t, conn, "Hoodies", nil, true)
	tree, err = svc.GetCategoryTree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 1)

	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "Knitwear"})
	require.NoError(t, err)

	tree, err = svc.GetCategoryTree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 3)
	roots, err = svc.GetRootCategories(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, roots, 3)
}

func TestCategoryService_GetRootCategories_Limit(t *testing.T) {
	svc, conn := setupCategoryServiceTest(t)
	ctx := context.Background()

	tees := seedCategory(t, conn, "Tees", nil, true)
	seedCategory(t, conn, "Oversized", &tees.ID, true)
	seedCategory(t, conn, "Hoodies", nil, true)
	seedCategory(t, conn, "Accessories", nil, true)

	roots, err := svc.GetRootCategories(ctx, 2)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "Accessories", roots[0].Name)
	assert.Equal(t, "Hoodies", roots[1].Name)

	all, err := svc.GetRootCategories(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCategoryService_GetLinearCategories(t *testing.T) {
	svc, conn := setupCategoryServiceTest(t)

	tees := seedCategory(t, conn, "Tees", nil, true)
	seedCategory(t, conn, "Oversized", &tees.ID, true)
	seedCategory(t, conn, "Hidden", nil, false)

	linear, err := svc.GetLinearCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, linear, 2)
	assert.Equal(t, "Oversized", linear[0].Name)
	assert.Equal(t, "Tees", linear[1].Name)
	assert.Empty(t, linear[1].Children)
}

func TestCategoryService_GetCategoryBySlug(t *testing.T) {
	svc, conn := setupCategoryServiceTest(t)
	ctx := context.Background()

	tees := seedCategory(t, conn, "Tees", nil, true)
	seedCategory(t, conn, "Oversized", &tees.ID, true)

	node, err := svc.GetCategoryBySlug(ctx, "tees")
	require.NoError(t, err)
	assert.Len(t, node.Children, 1)

	_, err = svc.GetCategoryBySlug(ctx, "missing")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestCategoryService_CreateCategory(t *testing.T) {
	svc, _ := setupCategoryServiceTest(t)
	ctx := context.Background()

	tops, err := svc.CreateCategory(ctx, CategoryInput{Name: "Tops"})
	require.NoError(t, err)
	assert.Equal(t, "tops", tops.Slug)
	assert.True(t, tops.IsActive)

	tees, err := svc.CreateCategory(ctx, CategoryInput{Name: "Tees", ParentID: &tops.ID})
	require.NoError(t, err)
	assert.Equal(t, tops.ID, *tees.ParentID)

	t.Run("duplicate slug", func(t *testing.T) {
		_, err := svc.CreateCategory(ctx, CategoryInput{Name: "TOPS"})
		assert.ErrorIs(t, err, ErrCategorySlugTaken)
	})

	t.Run("missing parent", func(t *testing.T) {
		missing := uint(999)
		_, err := svc.CreateCategory(ctx, CategoryInput{Name: "Orphan", ParentID: &missing})
		assert.ErrorIs(t, err, ErrParentCategoryNotFound)
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := svc.CreateCategory(ctx, CategoryInput{Name: "   "})
		assert.ErrorIs(t, err, ErrCategoryNameRequired)
	})
}

func TestCategoryService_UpdateCategory(t *testing.T) {
	svc, conn := setupCategoryServiceTest(t)
	ctx := context.Background()

	tops := seedCategory(t, conn, "Tops", nil, true)
	tees := seedCategory(t, conn, "Tees", &tops.ID, true)
	cropped := seedCategory(t, conn, "Cropped", &tees.ID, true)
	seedCategory(t, conn, "Bottoms", nil, true)

	t.Run("rename and deactivate", func(t *testing.T) {
		inactive := false
		updated, err := svc.UpdateCategory(ctx, cropped.ID, CategoryInput{Name: "Cropped Tees", Slug: "cropped-tees", IsActive: &inactive})
		require.NoError(t, err)
		assert.Equal(t, "Cropped Tees", updated.Name)
		assert.Equal(t, "cropped-tees", updated.Slug)
		assert.False(t, updated.IsActive)
	})

	t.Run("self parent", func(t *testing.T) {
		_, err := svc.UpdateCategory(ctx, tees.ID, CategoryInput{ParentID: &tees.ID})
		assert.ErrorIs(t, err, ErrSelfParentCategory)
	})

	t.Run("under own descendant", func(t *testing.T) {
		_, err := svc.UpdateCategory(ctx, tops.ID, CategoryInput{ParentID: &cropped.ID})
		assert.ErrorIs(t, err, ErrCategoryCycle)
	})

	t.Run("slug taken", func(t *testing.T) {
		_, err := svc.UpdateCategory(ctx, tees.ID, CategoryInput{Slug: "Bottoms"})
		assert.ErrorIs(t, err, ErrCategorySlugTaken)
	})

	t.Run("detach to root", func(t *testing.T) {
		updated, err := svc.UpdateCategory(ctx, tees.ID, CategoryInput{ClearParent: true})
		require.NoError(t, err)
		assert.Nil(t, updated.ParentID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.UpdateCategory(ctx, 999, CategoryInput{Name: "Ghost"})
		assert.ErrorIs(t, err, ErrCategoryNotFound)
	})
}

func TestCategoryService_DeleteCategory(t *testing.T) {
	svc, conn := setupCategoryServiceTest(t)
	ctx := context.Background()

	tops := seedCategory(t, conn, "Tops", nil, true)
	seedCategory(t, conn, "Tees", &tops.ID, true)

	tree, err := svc.GetCategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)

	require.NoError(t, svc.DeleteCategory(ctx, tops.ID))

	tree, err = svc.GetCategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "Tees", tree[0].Name)

	assert.ErrorIs(t, svc.DeleteCategory(ctx, tops.ID), ErrCategoryNotFound)
}

type failingCategoryRepo struct {
	repository.CategoryRepository
}

func (failingCategoryRepo) FindActive(context.Context) ([]model.Category, error) {
	return nil, errors.New("connection refused")
}

func TestCategoryService_RecomputeFailurePropagates(t *testing.T) {
	svc := NewCategoryService(failingCategoryRepo{}, cache.NewMemoryTagCache(), time.Hour)

	_, err := svc.GetCategoryTree(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

// slowCategoryRepo runs afterLoad once, between reading categories and
// returning them, the way an admin write can land mid-read
type slowCategoryRepo struct {
	repository.CategoryRepository
	afterLoad func()
}

func (r *slowCategoryRepo) FindActive(ctx context.Context) ([]model.Category, error) {
	categories, err := r.CategoryRepository.FindActive(ctx)
	if hook := r.afterLoad; hook != nil {
		r.afterLoad = nil
		hook()
	}
	return categories, err
}

func TestCategoryService_WriteDuringReadIsNotMaskedByCache(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})
	ctx := context.Background()

	repo := &slowCategoryRepo{CategoryRepository: repository.NewCategoryRepository(testDB)}
	svc := NewCategoryService(repo, cache.NewMemoryTagCache(), time.Hour)
	seedCategory(t, testDB, "Tees", nil, true)

	repo.afterLoad = func() {
		_, err := svc.CreateCategory(ctx, CategoryInput{Name: "Hoodies"})
		require.NoError(t, err)
	}

	tree, err := svc.GetCategoryTree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 1, "read started before the write")

	tree, err = svc.GetCategoryTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "Hoodies", tree[0].Name)
}
