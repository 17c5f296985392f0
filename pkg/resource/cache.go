// Package resource caches recognition templates in process and warms the
// cache ahead of the first round that needs them.
package resource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dukex/opflow/pkg/protocol"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxCost bounds the decoded template pixels kept in memory.
const DefaultMaxCost int64 = 256 << 20

// DefaultWarmConcurrency is the number of templates loaded in parallel by Warm.
const DefaultWarmConcurrency = 4

var ErrNoLoader = errors.New("template loader is nil")

// Cache is a TemplateLoader that keeps loaded templates in a ristretto cache.
// It is safe for concurrent use.
type Cache struct {
	c      *ristretto.Cache[string, image.Image]
	loader protocol.TemplateLoader
	logger *slog.Logger
}

var _ protocol.TemplateLoader = (*Cache)(nil)

// NewCache creates a cache in front of loader. maxCost is the maximum total
// of decoded bytes kept, DefaultMaxCost when not positive.
func NewCache(loader protocol.TemplateLoader, maxCost int64, logger *slog.Logger) (*Cache, error) {
	if loader == nil {
		return nil, ErrNoLoader
	}

	if maxCost <= 0 {
		maxCost = DefaultMaxCost
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, image.Image]{
		NumCounters: 10_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template cache: %w", err)
	}

	return &Cache{c: c, loader: loader, logger: logger.With("module", "resource")}, nil
}

// LoadTemplate returns the cached template, loading it on a miss.
func (c *Cache) LoadTemplate(ctx context.Context, id string) (image.Image, error) {
	if img, ok := c.c.Get(id); ok {
		return img, nil
	}

	img, err := c.loader.LoadTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", id, err)
	}

	c.c.Set(id, img, cost(img))
	c.c.Wait()

	return img, nil
}

// Cached reports whether id is currently in the cache.
func (c *Cache) Cached(id string) bool {
	_, ok := c.c.Get(id)

	return ok
}

// Warm loads ids concurrently, at most concurrency at a time. Every id is
// attempted; the returned error joins the failures.
func (c *Cache) Warm(ctx context.Context, ids []string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = DefaultWarmConcurrency
	}

	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				errs[i] = gctx.Err()

				return nil
			}

			_, errs[i] = c.LoadTemplate(gctx, id)

			return nil
		})
	}

	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		c.logger.WarnContext(ctx, "Template warm-up incomplete", "templates", len(ids), "error", err)

		return err
	}

	c.logger.DebugContext(ctx, "Templates warmed", "templates", len(ids))

	return nil
}

// Close releases the cache.
func (c *Cache) Close() {
	c.c.Close()
}

func cost(img image.Image) int64 {
	b := img.Bounds()

	n := int64(b.Dx()) * int64(b.Dy()) * 4
	if n <= 0 {
		return 1
	}

	return n
}
