package cache

import (
	"context"
	"time"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
)

// Store is a persistent backend. Entries are written once and never updated;
// a second Put for an existing key is ignored.
type Store interface {
	Get(ctx context.Context, k Key) (Entry, bool, error)
	PutBatch(ctx context.Context, entries []Entry) error
	// Prune deletes entries created before the cutoff and reports how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Options selects and tunes a backend.
type Options struct {
	Backend string // sqlite | postgres | redis | memory
	DSN     string
	TTL     time.Duration // redis only; other backends are pruned explicitly
}

// Open creates the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case "", "sqlite":
		s, err = OpenSQLite(ctx, opts.DSN)
	case "postgres":
		s, err = OpenPostgres(ctx, opts.DSN)
	case "redis":
		s, err = OpenRedis(ctx, opts.DSN, opts.TTL)
	case "memory":
		s = NewMemoryStore()
	default:
		return nil, apperrors.Newf(apperrors.ConfigInvalid, "unknown cache backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
