// Package cache memoizes text-producing calls on disk, one file per key,
// using the file's modification time as the only expiry signal.
//
// Writes are plain overwrites with no locking. Two processes missing on the
// same key both recompute and the last writer wins; a reader racing a writer
// may see a partially written entry.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"gistrun/internal/monitor"
)

// DefaultMaxAge is how long an entry is reused before it is recomputed.
const DefaultMaxAge = time.Hour

// KeySeparator joins the resource tag and arguments of a key.
const KeySeparator = "__"

// ComputeFunc produces the value for a cache miss.
type ComputeFunc func(ctx context.Context) (string, error)

// Cache returns the stored value for key when it is younger than maxAge,
// otherwise calls compute and stores its result. A compute error is returned
// as is and nothing is stored.
type Cache interface {
	Fetch(ctx context.Context, key string, maxAge time.Duration, compute ComputeFunc) (string, error)
}

// argEscaper keeps arguments from forming the separator, so distinct
// argument lists never share a key.
var argEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// Key builds a cache key from a resource tag and positional arguments,
// e.g. Key("script", "alice", "foo.sh") == "script__alice__foo.sh".
// "%" and "_" inside arguments are percent-escaped: Key("script", "a_b", "c")
// is "script__a%5Fb__c".
func Key(tag string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, tag)
	for _, a := range args {
		parts = append(parts, argEscaper.Replace(a))
	}
	return strings.Join(parts, KeySeparator)
}

// Memoize wraps fn so each call is served through c under Key(tag, args...).
func Memoize(c Cache, tag string, maxAge time.Duration,
	fn func(ctx context.Context, args ...string) (string, error),
) func(ctx context.Context, args ...string) (string, error) {
	return func(ctx context.Context, args ...string) (string, error) {
		return c.Fetch(ctx, Key(tag, args...), maxAge, func(ctx context.Context) (string, error) {
			return fn(ctx, args...)
		})
	}
}

// DiskCache stores entries as files under a root directory.
type DiskCache struct {
	root    string
	now     func() time.Time
	perm    os.FileMode
	metrics *monitor.Metrics
	tracer  *monitor.Tracer
}

// Option configures a DiskCache.
type Option func(*DiskCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *DiskCache) { c.now = now }
}

// WithMetrics records hit/miss counts.
func WithMetrics(m *monitor.Metrics) Option {
	return func(c *DiskCache) { c.metrics = m }
}

// WithTracer wraps every Fetch in a span.
func WithTracer(t *monitor.Tracer) Option {
	return func(c *DiskCache) { c.tracer = t }
}

// NewDiskCache returns a cache rooted at root. The directory is created
// lazily on the first Fetch.
func NewDiskCache(root string, opts ...Option) (*DiskCache, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving cache root: %w", err)
	}
	c := &DiskCache{
		root: abs,
		now:  time.Now,
		perm: 0o600,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the absolute cache directory.
func (c *DiskCache) Root() string {
	return c.root
}

// Path returns the file that stores key.
func (c *DiskCache) Path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(key) {
		return "", &Error{Op: "key", Key: key, Err: ErrInvalidKey}
	}
	return filepath.Join(c.root, key), nil
}

func (c *DiskCache) Fetch(ctx context.Context, key string, maxAge time.Duration, compute ComputeFunc) (string, error) {
	ctx, span := c.tracer.StartSpan(ctx, "cache.fetch", monitor.AttrCacheKey.String(key))
	defer span.End()

	tag := tagOf(key)
	logger := log.With().Str("cache_key", key).Logger()

	path, err := c.Path(key)
	if err != nil {
		c.metrics.RecordCacheLookup(tag, "error")
		return "", err
	}

	// MkdirAll is a no-op for an existing directory; anything else
	// (permissions, a file in the way, disk full) is reported.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.metrics.RecordCacheLookup(tag, "error")
		return "", &Error{Op: "mkdir", Key: key, Err: err}
	}

	result := "miss"
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			c.metrics.RecordCacheLookup(tag, "error")
			return "", &Error{Op: "stat", Key: key, Err: fmt.Errorf("%s is not a regular file", path)}
		}
		age := c.now().Sub(info.ModTime())
		if maxAge > 0 && age < maxAge {
			data, err := os.ReadFile(path) // #nosec G304 -- path is confined to the cache root by Path
			if err != nil {
				c.metrics.RecordCacheLookup(tag, "error")
				return "", &Error{Op: "read", Key: key, Err: err}
			}
			c.metrics.RecordCacheLookup(tag, "hit")
			span.SetAttributes(monitor.AttrCacheHit.Bool(true))
			logger.Debug().Dur("age", age).Msg("cache hit")
			return string(data), nil
		}
		result = "expired"
		logger.Debug().Dur("age", age).Dur("max_age", maxAge).Msg("cache entry expired")
	case errors.Is(err, os.ErrNotExist):
		logger.Debug().Msg("cache miss")
	default:
		c.metrics.RecordCacheLookup(tag, "error")
		return "", &Error{Op: "stat", Key: key, Err: err}
	}
	c.metrics.RecordCacheLookup(tag, result)
	span.SetAttributes(monitor.AttrCacheHit.Bool(false))

	value, err := compute(ctx)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(value), c.perm); err != nil {
		return "", &Error{Op: "write", Key: key, Err: err}
	}
	logger.Debug().Int("bytes", len(value)).Msg("cache entry stored")
	return value, nil
}

// Clear removes every entry file directly under the cache root and returns
// how many were removed. Subdirectories and the root itself are left alone.
func (c *DiskCache) Clear() (int, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, &Error{Op: "clear", Err: err}
	}

	var removed int
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(c.root, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, &Error{Op: "clear", Key: e.Name(), Err: err}
		}
		removed++
	}
	log.Debug().Int("count", removed).Str("root", c.root).Msg("cache cleared")
	return removed, nil
}

func tagOf(key string) string {
	tag, _, _ := strings.Cut(key, KeySeparator)
	return tag
}
