package container

import (
	"context"
	"errors"
	"sync"
)

// ResourceCleaner closes registered resources in reverse order
type ResourceCleaner struct {
	mu       sync.Mutex
	cleanups []func(context.Context) error
}

func NewResourceCleaner() *ResourceCleaner {
	return &ResourceCleaner{}
}

// Register adds a cleanup to run at shutdown
func (c *ResourceCleaner) Register(fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// RegisterFunc adds a cleanup that cannot fail
func (c *ResourceCleaner) RegisterFunc(fn func()) {
	c.Register(func(context.Context) error {
		fn()
		return nil
	})
}

// Cleanup runs every registered cleanup, last registered first, and joins
// their errors
func (c *ResourceCleaner) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	cleanups := c.cleanups
	c.cleanups = nil
	c.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
