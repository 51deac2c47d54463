// Package enginetest provides an in-memory engine capability for tests.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/domain/port"
)

// Capability mimics an engine workspace. Exec copies Outputs into the
// workspace after emitting Progress, optionally waiting on Block first.
type Capability struct {
	LoadErr  error
	WriteErr error
	ExecErr  error
	ListErr  error
	ReadErrs map[string]error

	Outputs  map[string][]byte
	Progress []float64

	// Block, when set, holds Exec until it is closed.
	Block chan struct{}
	// Started receives once per Exec call, if set.
	Started chan struct{}

	mu       sync.Mutex
	files    map[string][]byte
	execArgs [][]string
	loads    int
	cleans   int
}

func New(outputs map[string][]byte) *Capability {
	return &Capability{Outputs: outputs}
}

func (c *Capability) Load(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	return c.LoadErr
}

func (c *Capability) WriteFile(_ context.Context, name string, data []byte) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.files == nil {
		c.files = make(map[string][]byte)
	}
	c.files[name] = append([]byte(nil), data...)
	return nil
}

func (c *Capability) Exec(ctx context.Context, args []string, onProgress port.ProgressFunc) error {
	c.mu.Lock()
	c.execArgs = append(c.execArgs, append([]string(nil), args...))
	c.mu.Unlock()

	if c.Started != nil {
		select {
		case c.Started <- struct{}{}:
		default:
		}
	}

	for _, p := range c.Progress {
		onProgress(p)
	}

	if c.Block != nil {
		select {
		case <-c.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c.ExecErr != nil {
		return c.ExecErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.files == nil {
		c.files = make(map[string][]byte)
	}
	for name, data := range c.Outputs {
		c.files[name] = data
	}
	return nil
}

func (c *Capability) ListDir(_ context.Context) ([]entity.EngineOutput, error) {
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.EngineOutput, 0, len(c.files))
	for name, data := range c.files {
		out = append(out, entity.EngineOutput{Name: name, Size: int64(len(data))})
	}
	// Reverse order so callers that forget to sort are caught.
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

func (c *Capability) ReadFile(_ context.Context, name string) ([]byte, error) {
	if err := c.ReadErrs[name]; err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.files[name]
	if !ok {
		return nil, fmt.Errorf("read %s: no such file", name)
	}
	return data, nil
}

func (c *Capability) Clean(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = nil
	c.cleans++
	return nil
}

// File returns a workspace file written by WriteFile or Exec.
func (c *Capability) File(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.files[name]
	return data, ok
}

func (c *Capability) ExecArgs() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.execArgs...)
}

func (c *Capability) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func (c *Capability) Cleans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleans
}

// Frames builds n engine outputs named frame000001.jpg onwards whose bytes
// are "frame-<i>".
func Frames(n int) map[string][]byte {
	out := make(map[string][]byte, n)
	for i := 1; i <= n; i++ {
		out[fmt.Sprintf("frame%06d.jpg", i)] = []byte(fmt.Sprintf("frame-%d", i))
	}
	return out
}
