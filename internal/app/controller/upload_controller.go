package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/maisonvoile/storefront-backend/internal/errors"
	"github.com/maisonvoile/storefront-backend/internal/middleware"
	"github.com/maisonvoile/storefront-backend/internal/storage"
)

type UploadController struct {
	presigner storage.Presigner
}

func NewUploadController(presigner storage.Presigner) *UploadController {
	return &UploadController{
		presigner: presigner,
	}
}

type PresignUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size" binding:"required"`
}

// PresignCategoryImage hands out a direct upload URL for a category image.
// The returned file_url goes into the category's image_url afterwards.
// POST /api/v1/admin/uploads/category-image
func (ctrl *UploadController) PresignCategoryImage(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	if ctrl.presigner == nil {
		apperrors.RespondWithError(c, http.StatusServiceUnavailable, apperrors.InternalUnavailable, "Image uploads are not configured")
		return
	}

	var req PresignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "filename, content_type and size are required")
		return
	}

	upload, err := ctrl.presigner.PresignUpload(c.Request.Context(), storage.CategoryImageFolder, req.Filename, req.ContentType, req.Size)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrContentTypeNotAllowed):
			apperrors.BadRequest(c, apperrors.UploadInvalidFileType, "Only JPEG, PNG, WebP and AVIF images are allowed")
		case errors.Is(err, storage.ErrFileTooLarge):
			apperrors.BadRequest(c, apperrors.UploadFileTooLarge, "Image is too large")
		case errors.Is(err, storage.ErrEmptyFile):
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "size must be positive")
		default:
			log.Error("Failed to presign category image upload", err, map[string]interface{}{
				"filename":     req.Filename,
				"content_type": req.ContentType,
			})
			apperrors.RespondWithError(c, http.StatusInternalServerError, apperrors.UploadFailed, "Could not prepare the upload")
		}
		return
	}

	log.Info("Category image upload presigned", map[string]interface{}{
		"key":  upload.Key,
		"size": req.Size,
	})

	c.JSON(http.StatusOK, upload)
}
