package data

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/target/transcode-dispatch/internal/core"
	"github.com/target/transcode-dispatch/internal/domain/model"
)

// CountingStore wraps a Store and swallows every write, counting it instead.
// Reads pass through to the wrapped store. Tests use it to assert how often
// components write without letting them mutate the fixture state.
type CountingStore struct {
	core.Store
	writes atomic.Int64
}

// NewCountingStore wraps inner with write counting.
func NewCountingStore(inner core.Store) *CountingStore {
	return &CountingStore{Store: inner}
}

// Writes returns the number of write operations swallowed so far.
func (c *CountingStore) Writes() int64 {
	return c.writes.Load()
}

// SaveJob counts the write and drops it.
func (c *CountingStore) SaveJob(_ context.Context, _ *model.Job) error {
	c.writes.Add(1)
	return nil
}

// DeleteJob counts the write and drops it.
func (c *CountingStore) DeleteJob(_ context.Context, _ string) error {
	c.writes.Add(1)
	return nil
}

// UpdateJob counts the write and returns the unmodified record.
func (c *CountingStore) UpdateJob(ctx context.Context, id string, _ *model.UpdateJobRequest) (*model.Job, error) {
	c.writes.Add(1)
	return c.Store.GetJob(ctx, id)
}

// UpdateProgress counts the write and drops it.
func (c *CountingStore) UpdateProgress(_ context.Context, _ core.UpdateProgressParams) error {
	c.writes.Add(1)
	return nil
}

// MarkFailedRetry counts the write and drops it.
func (c *CountingStore) MarkFailedRetry(_ context.Context, _ string, _ time.Time) error {
	c.writes.Add(1)
	return nil
}

// SaveEngine counts the write and drops it.
func (c *CountingStore) SaveEngine(_ context.Context, _ *model.Engine) error {
	c.writes.Add(1)
	return nil
}

// DeleteEngine counts the write and drops it.
func (c *CountingStore) DeleteEngine(_ context.Context, _ string) error {
	c.writes.Add(1)
	return nil
}

// Restore counts the write and drops it.
func (c *CountingStore) Restore(_ context.Context, _ *model.Snapshot) error {
	c.writes.Add(1)
	return nil
}
