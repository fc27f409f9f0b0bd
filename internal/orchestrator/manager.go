// Package orchestrator runs the capture-to-overlay pipeline.
package orchestrator

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/fntranslate/livetranslate/internal/config"
	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/geom"
	"github.com/fntranslate/livetranslate/internal/ocr"
	"github.com/fntranslate/livetranslate/internal/orchestrator/activity"
	"github.com/fntranslate/livetranslate/internal/orchestrator/change"
	"github.com/fntranslate/livetranslate/internal/orchestrator/group"
	"github.com/fntranslate/livetranslate/internal/orchestrator/history"
	"github.com/fntranslate/livetranslate/internal/orchestrator/layout"
	"github.com/fntranslate/livetranslate/internal/orchestrator/stabilize"
	"github.com/fntranslate/livetranslate/internal/orchestrator/track"
	"github.com/fntranslate/livetranslate/internal/screen"
	"github.com/fntranslate/livetranslate/internal/syncx"
	"github.com/fntranslate/livetranslate/internal/trace"
	"github.com/fntranslate/livetranslate/internal/translate"
)

const historyEventBuffer = 100

// ErrRunning is returned by Start when the worker is already running.
var ErrRunning = errors.New("pipeline already running")

// Extractor finds candidate text regions in a frame.
type Extractor interface {
	Extract(f *screen.Frame) ([]layout.Region, error)
}

// Recognizer runs OCR over regions and returns words in screen coordinates.
type Recognizer interface {
	Recognize(ctx context.Context, regions []ocr.Region) ([]ocr.Word, error)
}

// Renderer draws overlays. An empty slice clears everything.
type Renderer interface {
	Render(ctx context.Context, overlays []Overlay) error
}

// Deps are the pipeline's external collaborators. Extractor may be nil in frame OCR mode;
// Cache may be nil to disable caching.
type Deps struct {
	Capturer   screen.Capturer
	Extractor  Extractor
	OCR        Recognizer
	Translator translate.Translator
	Cache      translate.Cache
	Renderer   Renderer
}

// Overlay is one translated block to draw.
type Overlay struct {
	ID     string           `json:"id"`
	Text   string           `json:"text"`
	Source string           `json:"source"`
	Rect   geom.Rect        `json:"rect"`
	Origin translate.Origin `json:"origin"`
}

// Status is a snapshot for the status endpoint.
type Status struct {
	Running   bool      `json:"running"`
	State     string    `json:"state"`
	Diff      float64   `json:"diff"`
	Tracked   int       `json:"tracked"`
	Cycles    uint64    `json:"cycles"`
	Resets    uint64    `json:"resets"`
	LastError string    `json:"last_error,omitempty"`
	LastCycle time.Time `json:"last_cycle,omitempty"`
}

// anchor is the fingerprint of the frame first translated after a reset, masked with the
// rectangles emitted at that time.
type anchor struct {
	fp    change.Fingerprint
	rects []geom.Rect
}

// pipelineState is owned by whoever holds cycleMu.
type pipelineState struct {
	prev       *screen.Frame
	anchor     anchor
	classifier *change.Classifier
	stabilizer *stabilize.Stabilizer
	tracker    *track.Tracker
	emitted    map[string]string // block ID -> translation last recorded in history
}

// Manager is the pipeline driver. One worker goroutine runs cycles strictly in sequence.
type Manager struct {
	cfg        *config.Config
	deps       Deps
	region     image.Rectangle
	grouper    *group.Grouper
	dispatcher *translate.Dispatcher
	activity   *activity.Detector
	history    *history.Store
	now        func() time.Time

	cycleMu sync.Mutex
	state   pipelineState

	resetReq *syncx.Signal
	status   *syncx.Guard[Status]
	overlays *syncx.Guard[[]Overlay]

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a manager. cfg is expected to have passed Validate.
func New(cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Capturer == nil || deps.OCR == nil || deps.Translator == nil || deps.Renderer == nil {
		return nil, apperrors.New(apperrors.InvalidArgument, "capturer, ocr, translator and renderer are required")
	}
	if cfg.OCRMode != "frame" && deps.Extractor == nil {
		return nil, apperrors.New(apperrors.InvalidArgument, "region ocr mode needs an extractor")
	}
	region, err := config.ParseRegion(cfg.Region)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "capture region")
	}

	m := &Manager{
		cfg:     cfg,
		deps:    deps,
		region:  image.Rect(region.X, region.Y, region.X+region.W, region.Y+region.H),
		grouper: group.New(group.Options{}),
		dispatcher: translate.NewDispatcher(deps.Translator, deps.Cache, translate.Options{
			Source:      cfg.SourceLang,
			Target:      cfg.TargetLang,
			Concurrency: cfg.TranslateConcurrency,
			Timeout:     cfg.TranslateTimeout(),
		}),
		activity: activity.NewDetector(cfg.ActivityWindow(), true),
		history:  history.NewStore(cfg.HistorySize, historyEventBuffer),
		now:      time.Now,
		resetReq: syncx.NewSignal(),
		status:   syncx.NewGuard(Status{State: change.Static.String()}),
		overlays: syncx.NewGuard([]Overlay{}),
	}
	m.state = pipelineState{
		classifier: change.NewClassifier(cfg.DiffLow, cfg.DiffHigh, cfg.SettleDelay()),
		stabilizer: stabilize.New(cfg.StableHistory, cfg.StableThreshold, cfg.StableOverlap),
		tracker: track.New(track.Options{
			Alpha:      cfg.TrackAlpha,
			LockFrames: cfg.TrackLockFrames,
			LockMove:   cfg.TrackLockMove,
			MaxMisses:  cfg.TrackMaxMisses,
			Dedupe:     cfg.TrackDedupe,
			Cover:      cfg.TrackCover,
			MaxDist:    cfg.TrackDistance,
		}),
		emitted: make(map[string]string),
	}
	return m, nil
}

// Start launches the worker. It stops when ctx is done, Stop is called, or the capturer
// reports an unrecoverable configuration error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrRunning
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.status.Update(func(s *Status) { s.Running = true })

	go m.run(ctx, m.stopCh, m.done)
	return nil
}

// Stop signals the worker and waits for the in-flight cycle to end.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.mu.Unlock()
	<-done
}

// Done is closed when the worker exits. Nil before Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *Manager) run(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.status.Update(func(s *Status) { s.Running = false })
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	log := trace.Logger(ctx)
	log.Info("pipeline started", "interval", m.cfg.CaptureInterval(), "mode", m.cfg.OCRMode)
	defer log.Info("pipeline stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.resetReq.C():
			m.applyReset(ctx, "requested")
			continue
		case <-timer.C:
		}

		wait := m.cfg.CaptureInterval()
		if err := m.Cycle(trace.WithContext(ctx, trace.New())); err != nil {
			switch {
			case ctx.Err() != nil:
				return
			case apperrors.IsCode(err, apperrors.InvalidArgument):
				log.Error("capture misconfigured, stopping pipeline", "error", err)
				return
			default:
				log.Warn("cycle failed", "error", err, "backoff", m.cfg.CaptureBackoff())
				wait = m.cfg.CaptureBackoff()
			}
		}
		timer.Reset(wait)
	}
}

// Reset asks the worker to clear all tracked state before its next cycle. Never blocks;
// repeated calls before the worker gets to it collapse into one.
func (m *Manager) Reset() {
	m.resetReq.Notify()
}

// Activity feeds a user input event; navigation keys and scrolling request a reset.
func (m *Manager) Activity(ev activity.Event) bool {
	if !m.activity.Check(ev) {
		return false
	}
	trace.Logger(context.Background()).Debug("activity reset", "kind", ev.Kind, "key", ev.Key)
	m.Reset()
	return true
}

// SetActivityResets enables/disables resets from input events.
func (m *Manager) SetActivityResets(enabled bool) {
	m.activity.SetEnabled(enabled)
}

// Status returns the latest status snapshot.
func (m *Manager) Status() Status {
	return m.status.Get()
}

// Overlays returns the last emitted overlay list.
func (m *Manager) Overlays() []Overlay {
	return append([]Overlay(nil), m.overlays.Get()...)
}

// History returns the translation history store.
func (m *Manager) History() *history.Store {
	return m.history
}
