package cache

import (
	"context"
	"sync"
	"time"

	"github.com/fntranslate/livetranslate/internal/trace"
)

const (
	DefaultBatchSize    = 32
	DefaultFlushDelay   = 2 * time.Second
	defaultFlushTimeout = 10 * time.Second
)

// Batcher accumulates entries and writes them to a Store in batches,
// off the caller's goroutine.
type Batcher struct {
	store      Store
	maxSize    int
	flushDelay time.Duration
	mu         sync.Mutex
	items      []Entry
	timer      *time.Timer
	stopped    bool
	wg         sync.WaitGroup
}

// NewBatcher creates a batcher writing to store.
func NewBatcher(store Store, maxSize int, flushDelay time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultBatchSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &Batcher{
		store:      store,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		items:      make([]Entry, 0, maxSize),
	}
}

// Add queues an entry. Entries added after Stop are dropped.
func (b *Batcher) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	b.items = append(b.items, e)

	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if len(b.items) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.items
	b.items = make([]Entry, 0, b.maxSize)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
		defer cancel()
		ctx, span := trace.StartSpan(ctx, "cache_batch_flush")
		defer span.End()
		span.SetAttr("count", len(items))

		if err := b.store.PutBatch(ctx, items); err != nil {
			span.SetAttr("error", err.Error())
			trace.Logger(ctx).Warn("cache batch write failed", "error", err, "count", len(items))
			return
		}
		trace.Logger(ctx).Debug("cache batch written", "count", len(items))
	}()
}

// Pending reports entries queued but not yet handed to the store.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Flush forces an immediate write of queued entries and waits for in-flight writes.
func (b *Batcher) Flush() {
	b.mu.Lock()
	b.flushLocked()
	b.mu.Unlock()
	b.wg.Wait()
}

// Stop flushes remaining entries and rejects further adds.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.flushLocked()
	b.mu.Unlock()
	b.wg.Wait()
}
