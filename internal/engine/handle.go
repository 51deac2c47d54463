// Package engine owns the lifecycle of the external processing engine: its
// one-shot asynchronous initialisation, readiness, and progress fan-out.
package engine

import (
	"context"
	"sync"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/domain/port"
	"go.uber.org/zap"
)

type Handle struct {
	capability port.EngineCapability
	logger     *zap.Logger

	initOnce sync.Once

	mu          sync.RWMutex
	state       entity.EngineState
	initErr     error
	subscribers map[int]port.ProgressFunc
	nextSubID   int

	progressMu    sync.Mutex
	progressFloor float64
}

func NewHandle(capability port.EngineCapability, logger *zap.Logger) *Handle {
	return &Handle{
		capability:  capability,
		logger:      logger,
		state:       entity.EngineStateUnready,
		subscribers: make(map[int]port.ProgressFunc),
	}
}

// Initialize loads the capability once. Later calls return the outcome of
// the first one without loading again.
func (h *Handle) Initialize(ctx context.Context) error {
	h.initOnce.Do(func() {
		h.logger.Info("loading processing engine")
		err := h.capability.Load(ctx)

		h.mu.Lock()
		defer h.mu.Unlock()
		if err != nil {
			h.state = entity.EngineStateFailed
			h.initErr = &entity.EngineInitError{Err: err}
			h.logger.Error("processing engine failed to load", zap.Error(err))
			return
		}
		h.state = entity.EngineStateReady
		h.logger.Info("processing engine ready")
	})

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.initErr
}

func (h *Handle) State() (entity.EngineState, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state, h.initErr
}

func (h *Handle) IsReady() bool {
	state, _ := h.State()
	return state == entity.EngineStateReady
}

// SubscribeProgress registers fn for progress fractions of active runs.
// Fractions are clamped to [0,1] and never decrease within one run.
func (h *Handle) SubscribeProgress(fn port.ProgressFunc) func() {
	h.mu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

func (h *Handle) WriteInput(ctx context.Context, name string, data []byte) error {
	if !h.IsReady() {
		return entity.ErrEngineNotReady
	}
	return h.capability.WriteFile(ctx, name, data)
}

// Run executes the engine and returns when the run settles; that return,
// not a final progress event, marks completion.
func (h *Handle) Run(ctx context.Context, args []string) error {
	if !h.IsReady() {
		return entity.ErrEngineNotReady
	}

	h.progressMu.Lock()
	h.progressFloor = 0
	h.progressMu.Unlock()

	return h.capability.Exec(ctx, args, h.emitProgress)
}

func (h *Handle) ListOutputs(ctx context.Context) ([]entity.EngineOutput, error) {
	if !h.IsReady() {
		return nil, entity.ErrEngineNotReady
	}
	return h.capability.ListDir(ctx)
}

func (h *Handle) ReadOutput(ctx context.Context, name string) ([]byte, error) {
	if !h.IsReady() {
		return nil, entity.ErrEngineNotReady
	}
	return h.capability.ReadFile(ctx, name)
}

func (h *Handle) Clean(ctx context.Context) error {
	if !h.IsReady() {
		return entity.ErrEngineNotReady
	}
	return h.capability.Clean(ctx)
}

func (h *Handle) emitProgress(fraction float64) {
	if fraction != fraction { // NaN
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	h.progressMu.Lock()
	defer h.progressMu.Unlock()
	if fraction < h.progressFloor {
		return
	}
	h.progressFloor = fraction

	h.mu.RLock()
	subs := make([]port.ProgressFunc, 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(fraction)
	}
}
