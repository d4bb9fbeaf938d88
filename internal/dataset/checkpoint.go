package dataset

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Checkpointer counts completed rows and saves the dataset every batchSize completions.
// Every completion counts, whether the row was labeled, skipped or left blank.
// The counter lives for one run only; only the saved file persists.
type Checkpointer struct {
	store     Store
	ds        *Dataset
	batchSize int
	logger    *zap.Logger

	mu        sync.Mutex
	completed int
	saves     int
	failures  int
}

// NewCheckpointer creates a checkpointer for ds
func NewCheckpointer(store Store, ds *Dataset, batchSize int, logger *zap.Logger) *Checkpointer {
	if batchSize <= 0 {
		batchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkpointer{
		store:     store,
		ds:        ds,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Done records one completed row and saves when the count reaches a multiple of the batch size.
// A failed periodic save is logged and the run continues; the next checkpoint retries.
func (c *Checkpointer) Done() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completed++
	if c.completed%c.batchSize != 0 {
		return
	}

	if err := c.store.Save(c.ds); err != nil {
		c.failures++
		c.logger.Error("checkpoint save failed",
			zap.Int("completed", c.completed),
			zap.Error(err))
		return
	}

	c.saves++
	c.logger.Info("checkpoint saved", zap.Int("completed", c.completed))
}

// Flush performs the final unconditional save
func (c *Checkpointer) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Save(c.ds); err != nil {
		c.failures++
		return fmt.Errorf("final save: %w", err)
	}

	c.saves++
	c.logger.Info("final save complete", zap.Int("completed", c.completed))
	return nil
}

// Completed returns the number of rows recorded so far
func (c *Checkpointer) Completed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// Saves returns the number of successful saves
func (c *Checkpointer) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

// Failures returns the number of failed saves
func (c *Checkpointer) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}
