package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
)

// ProgressFunc receives a completion fraction reported by the engine while
// a run is active. Values are not guaranteed to reach 1.
type ProgressFunc func(fraction float64)

// EngineCapability is the external decode/extract capability.
type EngineCapability interface {
	Load(ctx context.Context) error
	WriteFile(ctx context.Context, name string, data []byte) error
	Exec(ctx context.Context, args []string, onProgress ProgressFunc) error
	ListDir(ctx context.Context) ([]entity.EngineOutput, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
	Clean(ctx context.Context) error
}

// Engine is the readiness-aware handle the coordinator drives.
type Engine interface {
	IsReady() bool
	State() (entity.EngineState, error)
	SubscribeProgress(fn ProgressFunc) (unsubscribe func())
	WriteInput(ctx context.Context, name string, data []byte) error
	Run(ctx context.Context, args []string) error
	ListOutputs(ctx context.Context) ([]entity.EngineOutput, error)
	ReadOutput(ctx context.Context, name string) ([]byte, error)
	Clean(ctx context.Context) error
}
