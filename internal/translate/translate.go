// Package translate resolves block text to translations through a cache and a remote provider.
package translate

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fntranslate/livetranslate/internal/cache"
	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/trace"
)

// Translator is a remote translation service.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Cache stores translations by normalized key. Implementations must be safe for concurrent use
// and must absorb their own I/O failures.
type Cache interface {
	Get(ctx context.Context, k cache.Key) (string, bool)
	Put(ctx context.Context, k cache.Key, sourceText, translation string)
}

// Origin says where a result's text came from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginRemote   Origin = "remote"
	OriginFallback Origin = "fallback"
)

// Result is the translation for one input text, in input order.
type Result struct {
	Text        string
	Translation string
	Origin      Origin
}

const (
	DefaultConcurrency = 2
	DefaultTimeout     = 10 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	Source      string
	Target      string
	Concurrency int
	Timeout     time.Duration
}

// Dispatcher translates a cycle's texts: cache hits return directly, misses go to the
// translator with bounded concurrency. Identical keys share one call.
type Dispatcher struct {
	translator Translator
	cache      Cache
	opts       Options
}

// NewDispatcher creates a dispatcher. A nil cache disables caching.
func NewDispatcher(tr Translator, c Cache, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if c == nil {
		c = nopCache{}
	}
	return &Dispatcher{translator: tr, cache: c, opts: opts}
}

// Translate resolves every text. Provider failures fall back to the source text; the only
// error returned is ctx cancellation, in which case the results must be discarded.
func (d *Dispatcher) Translate(ctx context.Context, texts []string) ([]Result, error) {
	ctx, span := trace.StartSpan(ctx, "translate.dispatch")
	defer span.End()

	results := make([]Result, len(texts))
	misses := make(map[cache.Key][]int)
	var order []cache.Key

	for i, text := range texts {
		results[i] = Result{Text: text, Translation: text, Origin: OriginFallback}
		k := cache.NewKey(text, d.opts.Source, d.opts.Target)
		if k.Text == "" {
			continue
		}
		if tr, ok := d.cache.Get(ctx, k); ok {
			results[i].Translation = tr
			results[i].Origin = OriginCache
			continue
		}
		if _, ok := misses[k]; !ok {
			order = append(order, k)
		}
		misses[k] = append(misses[k], i)
	}
	span.SetAttr("texts", len(texts))
	span.SetAttr("misses", len(order))
	if len(order) == 0 {
		return results, ctx.Err()
	}

	translated := make([]string, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for j, k := range order {
		source := texts[misses[k][0]]
		g.Go(func() error {
			tr, err := d.call(gctx, source)
			if err != nil {
				if gctx.Err() == nil {
					trace.Logger(gctx).Warn("translation failed, using source text",
						"error", err, "code", apperrors.CodeOf(err).String(), "chars", len(source))
				}
				return nil
			}
			translated[j] = tr
			d.cache.Put(gctx, k, source, tr)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for j, k := range order {
		if translated[j] == "" {
			continue
		}
		for _, i := range misses[k] {
			results[i].Translation = translated[j]
			results[i].Origin = OriginRemote
		}
	}
	return results, nil
}

func (d *Dispatcher) call(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	tr, err := d.translator.Translate(ctx, text, d.opts.Source, d.opts.Target)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.Wrap(err, apperrors.Timeout, "translation timed out")
		}
		return "", err
	}
	tr = strings.TrimSpace(tr)
	if tr == "" {
		return "", apperrors.New(apperrors.TranslationFailed, "empty translation")
	}
	return tr, nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, cache.Key) (string, bool)  { return "", false }
func (nopCache) Put(context.Context, cache.Key, string, string) {}
