package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/nroy/internal/design"
)

const (
	// DefaultRunTimeout is the maximum time a simulation may run before being killed
	DefaultRunTimeout = 30 * time.Minute

	// DefaultMaxOutputSize caps the bytes kept from simulator stdout/stderr (10MB)
	DefaultMaxOutputSize = 10 * 1024 * 1024
)

// Input is the JSON document a simulator receives on stdin.
type Input struct {
	RunID      string             `json:"run_id"`
	Point      []float64          `json:"point"`
	Parameters map[string]float64 `json:"parameters"`
}

// Output is the JSON document a simulator must print. Only the last
// non-empty line of stdout is parsed, so simulators may log freely before it.
type Output struct {
	Value *float64 `json:"value"`
}

// ExecConfig configures an ExecDriver.
type ExecConfig struct {
	Command       []string
	WorkDir       string
	Env           []string
	Timeout       time.Duration
	MaxOutputSize int
}

// ExecDriver runs the simulator as a subprocess, one process per run, each
// in its own directory <WorkDir>/<runID>.
type ExecDriver struct {
	cfg    ExecConfig
	space  design.ParameterSpace
	logger *zap.Logger
}

// NewExecDriver validates cfg and creates the work directory.
func NewExecDriver(cfg ExecConfig, space design.ParameterSpace, logger *zap.Logger) (*ExecDriver, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("simulator command is empty")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "runs"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRunTimeout
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = DefaultMaxOutputSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory %s: %w", cfg.WorkDir, err)
	}

	return &ExecDriver{cfg: cfg, space: space, logger: logger}, nil
}

// RunDir returns the directory a run writes to.
func (d *ExecDriver) RunDir(runID string) string {
	return filepath.Join(d.cfg.WorkDir, runID)
}

// Run implements Driver.
func (d *ExecDriver) Run(ctx context.Context, point []float64, runID string) (float64, error) {
	fail := func(exitCode int, reason string, err error) (float64, error) {
		return 0, &Failure{RunID: runID, Point: point, Reason: reason, ExitCode: exitCode, Err: err}
	}

	runDir := d.RunDir(runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fail(-1, "failed to create run directory", err)
	}

	input, err := json.Marshal(Input{RunID: runID, Point: point, Parameters: d.space.Named(point)})
	if err != nil {
		return fail(-1, "failed to marshal simulator input", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "input.json"), input, 0o644); err != nil {
		return fail(-1, "failed to write simulator input", err)
	}

	d.logger.Debug("launching simulator",
		zap.String("run_id", runID),
		zap.Strings("command", d.cfg.Command),
		zap.String("dir", runDir))
	start := time.Now()

	exitCode, stdout, stderr, err := d.execute(ctx, runDir, runID, input)
	d.saveLogs(runDir, stdout, stderr)
	if err != nil {
		d.logger.Debug("simulator failed",
			zap.String("run_id", runID),
			zap.Int("exit_code", exitCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("stderr", truncate(stderr, 200)))
		return fail(exitCode, "simulator process failed", err)
	}

	value, err := parseOutput(stdout)
	if err != nil {
		return fail(0, "invalid simulator output", err)
	}

	d.logger.Debug("simulator completed",
		zap.String("run_id", runID),
		zap.Float64("value", value),
		zap.Duration("duration", time.Since(start)))
	return value, nil
}

// execute runs the command with timeout and output limits.
// Returns (exitCode, stdout, stderr, error) where exitCode is -1 when the
// process could not start or was killed.
func (d *ExecDriver) execute(ctx context.Context, dir, runID string, input []byte) (int, string, string, error) {
	execCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, d.cfg.Command[0], d.cfg.Command[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"NROY_RUN_ID="+runID,
		"NROY_RUN_DIR="+dir,
	)
	cmd.Env = append(cmd.Env, d.cfg.Env...)
	cmd.Stdin = bytes.NewReader(input)
	// Children that inherit stdout must not hold Wait past the kill.
	cmd.WaitDelay = time.Second

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	cmd.Stdout = &limitedWriter{w: stdoutBuf, limit: d.cfg.MaxOutputSize}
	cmd.Stderr = &limitedWriter{w: stderrBuf, limit: d.cfg.MaxOutputSize}

	if err := cmd.Start(); err != nil {
		return -1, "", "", fmt.Errorf("failed to start process: %w", err)
	}

	err := cmd.Wait()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	if stdoutBuf.Len() >= d.cfg.MaxOutputSize || stderrBuf.Len() >= d.cfg.MaxOutputSize {
		return -1, stdout, stderr, fmt.Errorf("simulator output exceeded %d byte limit", d.cfg.MaxOutputSize)
	}

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return -1, stdout, stderr, fmt.Errorf("simulator timed out after %s", d.cfg.Timeout)
		}
		if ctx.Err() != nil {
			return -1, stdout, stderr, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stdout, stderr, fmt.Errorf("process exited with code %d: %s",
				exitErr.ExitCode(), truncate(strings.TrimSpace(stderr), 500))
		}
		return -1, stdout, stderr, err
	}

	return 0, stdout, stderr, nil
}

func (d *ExecDriver) saveLogs(dir, stdout, stderr string) {
	for name, content := range map[string]string{"stdout.log": stdout, "stderr.log": stderr} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			d.logger.Warn("failed to save simulator log", zap.String("file", name), zap.Error(err))
		}
	}
}

// parseOutput reads {"value": v} from the last non-empty line of stdout.
func parseOutput(stdout string) (float64, error) {
	line := lastLine(stdout)
	if line == "" {
		return 0, fmt.Errorf("simulator produced no output")
	}

	var out Output
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		return 0, fmt.Errorf("last output line is not JSON: %w (line: %s)", err, truncate(line, 200))
	}
	if out.Value == nil {
		return 0, fmt.Errorf("output is missing required field \"value\"")
	}
	return *out.Value, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err
}

// truncate limits a string to maxLen characters, appending "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
