package cache

import (
	"errors"
	"fmt"
)

// ErrInvalidKey is returned for keys that are empty or would escape the cache root.
var ErrInvalidKey = errors.New("invalid cache key")

// Error is a local filesystem failure while reading or writing an entry.
type Error struct {
	Op  string // mkdir, stat, read, write, clear, key
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s %q: %s", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("cache %s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCacheError returns true if err is, or wraps, a cache *Error.
func IsCacheError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
