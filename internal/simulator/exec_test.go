package simulator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// writeScript creates an executable shell script in dir.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "sim.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newExecDriver(t *testing.T, body string, timeout time.Duration) (*ExecDriver, string) {
	t.Helper()
	dir := t.TempDir()
	script := writeScript(t, dir, body)
	workDir := filepath.Join(dir, "runs")

	d, err := NewExecDriver(ExecConfig{
		Command: []string{script},
		WorkDir: workDir,
		Timeout: timeout,
	}, testSpace(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	return d, workDir
}

func TestExecDriver_Success(t *testing.T) {
	d, workDir := newExecDriver(t, `cat > received.json
echo "starting solver"
echo '{"value": 12.5}'
`, 10*time.Second)

	v, err := d.Run(context.Background(), []float64{-100, 0.25}, "sample_point_0")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	raw, err := os.ReadFile(filepath.Join(workDir, "sample_point_0", "received.json"))
	require.NoError(t, err)

	var in Input
	require.NoError(t, json.Unmarshal(raw, &in))
	assert.Equal(t, "sample_point_0", in.RunID)
	assert.Equal(t, []float64{-100, 0.25}, in.Point)
	assert.Equal(t, map[string]float64{"x0": -100, "x1": 0.25}, in.Parameters)

	assert.FileExists(t, filepath.Join(workDir, "sample_point_0", "input.json"))
	assert.FileExists(t, filepath.Join(workDir, "sample_point_0", "stdout.log"))
}

func TestExecDriver_DistinctRunDirectories(t *testing.T) {
	d, workDir := newExecDriver(t, `echo "$NROY_RUN_ID" > marker
echo '{"value": 1}'
`, 10*time.Second)

	for _, id := range []string{"a", "b"} {
		_, err := d.Run(context.Background(), []float64{-100, 0.25}, id)
		require.NoError(t, err)
	}

	for _, id := range []string{"a", "b"} {
		marker, err := os.ReadFile(filepath.Join(workDir, id, "marker"))
		require.NoError(t, err)
		assert.Equal(t, id+"\n", string(marker))
	}
}

func TestExecDriver_NonZeroExit(t *testing.T) {
	d, _ := newExecDriver(t, `echo "diverged" >&2
exit 3
`, 10*time.Second)

	_, err := d.Run(context.Background(), []float64{-100, 0.25}, "run-exit")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, 3, f.ExitCode)
	assert.Contains(t, err.Error(), "diverged")
}

func TestExecDriver_InvalidOutput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no output", "exit 0\n"},
		{"not json", "echo 'result: 4'\n"},
		{"missing value", `echo '{"result": 4}'` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newExecDriver(t, tt.body, 10*time.Second)
			_, err := d.Run(context.Background(), []float64{-100, 0.25}, "run")
			assert.True(t, IsFailure(err))
		})
	}
}

func TestExecDriver_Timeout(t *testing.T) {
	d, _ := newExecDriver(t, "exec sleep 5\n", 100*time.Millisecond)

	start := time.Now()
	_, err := d.Run(context.Background(), []float64{-100, 0.25}, "run-slow")
	assert.True(t, IsFailure(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestNewExecDriver_EmptyCommand(t *testing.T) {
	_, err := NewExecDriver(ExecConfig{WorkDir: t.TempDir()}, testSpace(t), nil)
	assert.Error(t, err)
}

func TestParseOutput(t *testing.T) {
	v, err := parseOutput("log line\n\n{\"value\": -3.25}\n\n")
	require.NoError(t, err)
	assert.Equal(t, -3.25, v)

	_, err = parseOutput("   ")
	assert.Error(t, err)
}

func TestLimitedWriter(t *testing.T) {
	var buf []byte
	w := &limitedWriter{w: writerFunc(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	}), limit: 5}

	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = w.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", string(buf))
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestContainerEnv(t *testing.T) {
	space := testSpace(t)
	space.Names = []string{"normal_stress", "shear_ratio"}

	env, err := containerEnv("run-7", []float64{-95, 0.2}, space)
	require.NoError(t, err)
	assert.Contains(t, env, "NROY_RUN_ID=run-7")
	assert.Contains(t, env, "NROY_POINT=[-95,0.2]")
	assert.Contains(t, env, `NROY_PARAMETERS={"normal_stress":-95,"shear_ratio":0.2}`)
}
