package errors

// Error codes returned in ErrorResponse.Error.
// Format: CATEGORY_SPECIFIC_DETAIL. Clients map these to copy.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized = "AUTH_UNAUTHORIZED"
	AuthTokenExpired = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid = "AUTH_TOKEN_INVALID"

	// ==================== Authz (AUTHZ_) ====================
	AuthzForbidden    = "AUTHZ_FORBIDDEN"
	AuthzRoleNotFound = "AUTHZ_ROLE_NOT_FOUND"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID    = "VALIDATION_INVALID_ID"
	ValidationRequired     = "VALIDATION_REQUIRED"

	// ==================== Resource (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// ==================== Category (CATEGORY_) ====================
	CategoryNotFound       = "CATEGORY_NOT_FOUND"
	CategoryParentNotFound = "CATEGORY_PARENT_NOT_FOUND"
	CategorySlugTaken      = "CATEGORY_SLUG_TAKEN"
	CategorySelfParent     = "CATEGORY_SELF_PARENT"
	CategoryCycle          = "CATEGORY_CYCLE"

	// ==================== Product (PRODUCT_) ====================
	ProductNotFound        = "PRODUCT_NOT_FOUND"
	ProductVariantNotFound = "PRODUCT_VARIANT_NOT_FOUND"

	// ==================== Cart (CART_) ====================
	CartMaxStockReached   = "CART_MAX_STOCK_REACHED"
	CartInsufficientStock = "CART_INSUFFICIENT_STOCK"
	CartInvalidQuantity   = "CART_INVALID_QUANTITY"
	CartSyncFailed        = "CART_SYNC_FAILED"
	CartUnavailable       = "CART_UNAVAILABLE"

	// ==================== Upload (UPLOAD_) ====================
	UploadInvalidFileType = "UPLOAD_INVALID_FILE_TYPE"
	UploadFileTooLarge    = "UPLOAD_FILE_TOO_LARGE"
	UploadFailed          = "UPLOAD_FAILED"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalUnavailable   = "INTERNAL_UNAVAILABLE"
)
