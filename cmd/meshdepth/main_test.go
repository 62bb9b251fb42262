package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshdepth/internal/ledger"
)

type cliEnv struct {
	base   string
	meshes string
	out    string
	ledger string
}

// setupCLIEnv isolates the config lookup and creates a directory with
// three tilted quad frames drifting along the view axis.
func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "xdg"))
	t.Chdir(base)

	env := &cliEnv{
		base:   base,
		meshes: filepath.Join(base, "frames"),
		out:    filepath.Join(base, "depth"),
		ledger: filepath.Join(base, "runs.db"),
	}
	for i := range 3 {
		writeQuad(t, filepath.Join(env.meshes, fmt.Sprintf("f%03d.obj", i)), 0.1*float64(i))
	}
	return env
}

func writeQuad(t *testing.T, path string, dz float64) {
	t.Helper()
	obj := fmt.Sprintf(`v -0.5 0 %[1]g
v 0.5 0 %[1]g
v 0.5 1 %[2]g
v -0.5 1 %[2]g
f 1 2 3
f 1 3 4
`, dz, dz+0.3)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(obj), 0644))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunWritesEveryPair(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, "run", env.meshes,
		"--out", env.out, "--width", "32", "--height", "32", "--ledger", env.ledger)
	require.NoError(t, err, out)
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "6 / 6")
	assert.Contains(t, out, "Recorded run")

	for _, angle := range []string{"front", "back"} {
		for i := range 3 {
			path := filepath.Join(env.out, angle, fmt.Sprintf("f%03d.png", i))
			assert.FileExists(t, path)
		}
	}
	_, err = os.Stat(filepath.Join(env.out, "front_normals"))
	assert.True(t, os.IsNotExist(err), "normal maps written without --normals")
}

func TestRunNormalsAndPlot(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, "run", env.meshes,
		"--out", env.out, "--width", "32", "--height", "32",
		"--no-ledger", "--normals", "--plot")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Depth range chart")
	assert.NotContains(t, out, "Recorded run")

	assert.FileExists(t, filepath.Join(env.out, "front_normals", "f000.png"))
	assert.FileExists(t, filepath.Join(env.out, "back_normals", "f002.png"))
	assert.FileExists(t, filepath.Join(env.out, "depth_range.png"))
}

func TestRunHistoryAndShow(t *testing.T) {
	env := setupCLIEnv(t)

	_, err := runCLI(t, "run", env.meshes,
		"--out", env.out, "--width", "16", "--height", "16", "--ledger", env.ledger)
	require.NoError(t, err)

	out, err := runCLI(t, "history", "--ledger", filepath.Join(env.base, "empty.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded in "+filepath.Join(env.base, "empty.db"))

	out, err = runCLI(t, "history", "--ledger", env.ledger)
	require.NoError(t, err)
	assert.Contains(t, out, env.meshes)
	assert.Contains(t, out, "complete")

	l, err := ledger.Open(context.Background(), env.ledger)
	require.NoError(t, err)
	runs, err := l.List(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.Len(t, runs, 1)

	out, err = runCLI(t, "show", runs[0].ID[:8], "--ledger", env.ledger)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)
	assert.Contains(t, out, "front, back")

	_, err = runCLI(t, "show", "nope", "--ledger", env.ledger)
	assert.True(t, errors.Is(err, ledger.ErrRunNotFound), "got %v", err)
}

func TestRunPartialExitsWithError(t *testing.T) {
	env := setupCLIEnv(t)
	// A collinear frame inside the shared bounds has no area from any angle.
	obj := "v 0 0.2 0\nv 0 0.4 0\nv 0 0.6 0\nf 1 2 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.meshes, "f003.obj"), []byte(obj), 0644))

	out, err := runCLI(t, "run", env.meshes,
		"--out", env.out, "--width", "16", "--height", "16", "--ledger", env.ledger)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errPartialRun), "got %v", err)
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "f003.obj")
	assert.FileExists(t, filepath.Join(env.out, "front", "f000.png"))
	assert.NoFileExists(t, filepath.Join(env.out, "front", "f003.png"))
}

func TestRunFatalErrors(t *testing.T) {
	env := setupCLIEnv(t)

	t.Run("missing input dir", func(t *testing.T) {
		_, err := runCLI(t, "run", filepath.Join(env.base, "nope"), "--out", env.out, "--no-ledger")
		assert.Error(t, err)
	})

	t.Run("empty input dir", func(t *testing.T) {
		empty := filepath.Join(env.base, "empty")
		require.NoError(t, os.MkdirAll(empty, 0755))
		_, err := runCLI(t, "run", empty, "--out", env.out, "--no-ledger")
		assert.ErrorContains(t, err, "empty frame sequence")
	})

	t.Run("invalid backend", func(t *testing.T) {
		_, err := runCLI(t, "run", env.meshes, "--backend", "vulkan", "--no-ledger")
		assert.ErrorContains(t, err, "unknown backend")
	})
}

func TestRunOutputLocked(t *testing.T) {
	env := setupCLIEnv(t)
	require.NoError(t, os.MkdirAll(env.out, 0755))

	held := flock.New(filepath.Join(env.out, lockName))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	_, err = runCLI(t, "run", env.meshes, "--out", env.out, "--no-ledger")
	assert.ErrorContains(t, err, "another meshdepth run")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLIEnv(t)
	target := filepath.Join(env.base, "conf", "meshdepth.yaml")

	out, err := runCLI(t, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")
	require.FileExists(t, target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "bit_depth: 8"), string(data))

	_, err = runCLI(t, "config", "init", "--path", target)
	assert.ErrorContains(t, err, "already exists")

	_, err = runCLI(t, "config", "init", "--path", target, "--overwrite")
	assert.NoError(t, err)

	out, err = runCLI(t, "config", "validate", "--config", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
}

func TestConfigInitDefaultPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("user config dir follows XDG_CONFIG_HOME on linux only")
	}
	env := setupCLIEnv(t)

	_, err := runCLI(t, "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(env.base, "xdg", "meshdepth", "config.yaml"))
}
