package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/domain/port"
	"go.uber.org/zap"
)

var errInvalidName = errors.New("invalid workspace file name")

// Engine runs the ffmpeg binary against a private workspace directory. Input
// and output files are addressed by bare names inside that directory.
type Engine struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	logger      *zap.Logger
}

type EngineConfig struct {
	FFmpegPath  string
	FFprobePath string
	WorkDir     string
}

func NewEngine(cfg EngineConfig, logger *zap.Logger) *Engine {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobePath := cfg.FFprobePath
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Engine{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		workDir:     cfg.WorkDir,
		logger:      logger,
	}
}

// Load resolves the binaries, checks that ffmpeg actually runs and prepares
// the workspace.
func (e *Engine) Load(ctx context.Context) error {
	ffmpegPath, err := exec.LookPath(e.ffmpegPath)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	e.ffmpegPath = ffmpegPath

	if ffprobePath, err := exec.LookPath(e.ffprobePath); err != nil {
		e.logger.Warn("ffprobe not found, progress will not be reported", zap.Error(err))
	} else {
		e.ffprobePath = ffprobePath
	}

	out, err := exec.CommandContext(ctx, e.ffmpegPath, "-version").Output()
	if err != nil {
		return fmt.Errorf("ffmpeg -version: %w", err)
	}

	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	version, _, _ := strings.Cut(string(out), "\n")
	e.logger.Info("ffmpeg available",
		zap.String("path", e.ffmpegPath),
		zap.String("version", strings.TrimSpace(version)),
		zap.String("workdir", e.workDir),
	)
	return nil
}

func (e *Engine) WriteFile(_ context.Context, name string, data []byte) error {
	p, err := e.path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Exec runs ffmpeg with args inside the workspace. Progress is derived from
// the -progress stream relative to the probed duration of the -i input, so
// no progress is reported when the duration is unknown.
func (e *Engine) Exec(ctx context.Context, args []string, onProgress port.ProgressFunc) error {
	var duration float64
	if input := inputArg(args); input != "" {
		if p, err := e.path(input); err == nil {
			if d, err := e.getVideoDuration(ctx, p); err != nil {
				e.logger.Warn("could not get video duration", zap.Error(err))
			} else {
				duration = d
			}
		}
	}

	fullArgs := append([]string{"-hide_banner", "-nostats", "-y", "-progress", "pipe:1"}, args...)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, fullArgs...)
	cmd.Dir = e.workDir

	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanProgress(stdout, duration, onProgress)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, stderr.String())
	}
	return nil
}

func (e *Engine) ListDir(_ context.Context) ([]entity.EngineOutput, error) {
	entries, err := os.ReadDir(e.workDir)
	if err != nil {
		return nil, fmt.Errorf("list workspace: %w", err)
	}

	outputs := make([]entity.EngineOutput, 0, len(entries))
	for _, de := range entries {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", de.Name(), err)
		}
		outputs = append(outputs, entity.EngineOutput{Name: de.Name(), Size: info.Size()})
	}
	return outputs, nil
}

func (e *Engine) ReadFile(_ context.Context, name string) ([]byte, error) {
	p, err := e.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Clean empties the workspace, keeping the directory itself.
func (e *Engine) Clean(_ context.Context) error {
	entries, err := os.ReadDir(e.workDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(e.workDir, 0o755)
		}
		return fmt.Errorf("list workspace: %w", err)
	}
	for _, de := range entries {
		if err := os.RemoveAll(filepath.Join(e.workDir, de.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", de.Name(), err)
		}
	}
	return nil
}

func (e *Engine) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return filepath.Join(e.workDir, name), nil
}

func (e *Engine) getVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(string(output))
}

func parseDuration(s string) (float64, error) {
	duration, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid video duration: %f", duration)
	}
	return duration, nil
}

func inputArg(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			return args[i+1]
		}
	}
	return ""
}

// scanProgress reads ffmpeg's key=value progress stream until EOF.
func scanProgress(r io.Reader, duration float64, onProgress port.ProgressFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if fraction, ok := parseProgressLine(scanner.Text(), duration); ok && onProgress != nil {
			onProgress(fraction)
		}
	}
	// Drain so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// parseProgressLine turns an out_time_us line into a fraction of duration.
// ffmpeg's out_time_ms is also in microseconds.
func parseProgressLine(line string, duration float64) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || (key != "out_time_us" && key != "out_time_ms") {
		return 0, false
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	fraction := float64(us) / 1e6 / duration
	if fraction > 1 {
		fraction = 1
	}
	return fraction, true
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.limit {
		p = p[len(p)-t.limit:]
	}
	if over := t.buf.Len() + len(p) - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
