package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fntranslate/livetranslate/internal/trace"
)

const DefaultLRUSize = 2048

// Layered fronts a Store with an in-memory LRU and write-behind batching.
// Store failures are logged and surface as misses so translation keeps working.
type Layered struct {
	store   Store
	recent  *lru.Cache[Key, Entry]
	batcher *Batcher
	now     func() time.Time
}

// LayeredOptions tunes the front layer.
type LayeredOptions struct {
	LRUSize    int
	BatchSize  int
	FlushDelay time.Duration
}

// NewLayered wraps store.
func NewLayered(store Store, opts LayeredOptions) (*Layered, error) {
	if opts.LRUSize <= 0 {
		opts.LRUSize = DefaultLRUSize
	}
	recent, err := lru.New[Key, Entry](opts.LRUSize)
	if err != nil {
		return nil, err
	}
	return &Layered{
		store:   store,
		recent:  recent,
		batcher: NewBatcher(store, opts.BatchSize, opts.FlushDelay),
		now:     time.Now,
	}, nil
}

// Get returns the cached translation for k.
func (l *Layered) Get(ctx context.Context, k Key) (string, bool) {
	if e, ok := l.recent.Get(k); ok {
		return e.Translation, true
	}
	e, ok, err := l.store.Get(ctx, k)
	if err != nil {
		trace.Logger(ctx).Warn("cache lookup failed", "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	l.recent.Add(k, e)
	return e.Translation, true
}

// Put records a translation. The first translation for a key wins; later puts are ignored.
func (l *Layered) Put(_ context.Context, k Key, sourceText, translation string) {
	if l.recent.Contains(k) {
		return
	}
	e := Entry{Key: k, SourceText: sourceText, Translation: translation, CreatedAt: l.now()}
	l.recent.Add(k, e)
	l.batcher.Add(e)
}

// Flush writes queued entries through to the store.
func (l *Layered) Flush() {
	l.batcher.Flush()
}

// Stats reports the LRU size, queued writes and the persistent count.
func (l *Layered) Stats(ctx context.Context) Stats {
	s := Stats{Recent: l.recent.Len(), Pending: l.batcher.Pending()}
	n, err := l.store.Count(ctx)
	if err != nil {
		trace.Logger(ctx).Warn("cache count failed", "error", err)
		s.Stored = -1
	} else {
		s.Stored = n
	}
	return s
}

// Stats is a cache snapshot.
type Stats struct {
	Recent  int   `json:"recent"`
	Pending int   `json:"pending"`
	Stored  int64 `json:"stored"`
}

// Close flushes pending writes and closes the store.
func (l *Layered) Close() error {
	l.batcher.Stop()
	return l.store.Close()
}
