package errors

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

type ErrorInfo struct {
	Code    string
	Message string
}

// ParseError maps infrastructure errors (gorm, postgres, sqlite, network) to
// a code and a message that hides driver detail. subject names what the
// caller was working on, e.g. "category" or "cart item".
func ParseError(err error, subject string) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: InternalServerError, Message: "Something went wrong"}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{Code: ResourceNotFound, Message: notFoundMessage(subject)}
	}

	lower := strings.ToLower(err.Error())

	// postgres 23505, sqlite UNIQUE constraint failed
	if strings.Contains(lower, "duplicate key") || strings.Contains(lower, "unique constraint") {
		return parseDuplicateKeyError(lower)
	}

	// postgres 23503
	if strings.Contains(lower, "foreign key constraint") {
		return ErrorInfo{Code: ResourceConflict, Message: "This " + subjectOrDefault(subject) + " is still referenced by other data"}
	}

	// postgres 23502, sqlite NOT NULL constraint failed
	if strings.Contains(lower, "not-null constraint") || strings.Contains(lower, "not null constraint") {
		return ErrorInfo{Code: ValidationRequired, Message: "A required field is missing"}
	}

	if strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") {
		return ErrorInfo{Code: InternalUnavailable, Message: "A backing service is unavailable. Please try again shortly"}
	}

	return ErrorInfo{Code: InternalServerError, Message: "Something went wrong. Please try again shortly"}
}

func parseDuplicateKeyError(lower string) ErrorInfo {
	switch {
	case strings.Contains(lower, "categories") && strings.Contains(lower, "slug"):
		return ErrorInfo{Code: CategorySlugTaken, Message: "Category slug is already in use"}
	case strings.Contains(lower, "slug"):
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "Slug is already in use"}
	case strings.Contains(lower, "idx_cart_items_line") || strings.Contains(lower, "cart_items"):
		return ErrorInfo{Code: ResourceConflict, Message: "Cart line was changed concurrently. Please retry"}
	default:
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "This record already exists"}
	}
}

func notFoundMessage(subject string) string {
	if subject == "" {
		return "The requested resource was not found"
	}
	return strings.ToUpper(subject[:1]) + subject[1:] + " not found"
}

func subjectOrDefault(subject string) string {
	if subject == "" {
		return "record"
	}
	return subject
}

// ParseAndRespond writes the parsed error with statusCode
func ParseAndRespond(c interface{ JSON(int, interface{}) }, statusCode int, err error, subject string) {
	info := ParseError(err, subject)
	c.JSON(statusCode, ErrorResponse{
		Error:   info.Code,
		Message: info.Message,
	})
}
