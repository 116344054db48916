// Package cache provides a key/value cache whose entries can be invalidated
// in bulk through tags.
package cache

import (
	"context"
	"errors"
	"time"
)

// TagCategories groups every cached category read.
const TagCategories = "categories"

var ErrNilValue = errors.New("cache: nil value")

// TagCache stores JSON-encodable values. Get decodes into dest and reports
// whether the key was present.
//
// Generation reports a counter that InvalidateTag advances. Readers that
// embed it in their keys never see a value computed before the last
// invalidation, even when its Set lands after it.
type TagCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error
	InvalidateTag(ctx context.Context, tag string) error
	Generation(ctx context.Context, tag string) (int64, error)
}
