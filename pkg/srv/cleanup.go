package srv

import (
	"context"
	"sync"
)

// cleanupService adapts a bare close function to the Service interface:
// no-op on Start, runs the function at most once on Shutdown.
type cleanupService struct {
	once    sync.Once
	cleanup func() error
}

func (c *cleanupService) Start(ctx context.Context) error {
	return nil
}

func (c *cleanupService) Shutdown(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		if c.cleanup != nil {
			err = c.cleanup()
		}
	})
	return err
}

func NewCleanup(fn func() error) Service {
	return &cleanupService{cleanup: fn}
}
