package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/engine/memory"
	"github.com/wippyai/jet-runtime/errors"
	"github.com/wippyai/jet-runtime/runtime"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.True(t, cfg.ThreadAffinity)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Version)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: memory
version: "8.1"
thread_affinity: false
instance:
  name: main
  display_name: Main
log:
  level: debug
  development: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "8.1", cfg.Version)
	assert.False(t, cfg.ThreadAffinity)
	assert.Equal(t, "main", cfg.Instance.Name)
	assert.Equal(t, "Main", cfg.Instance.DisplayName)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JET_VERSION", "0x81000000")
	t.Setenv("JET_INSTANCE_NAME", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0x81000000", cfg.Version)
	assert.Equal(t, "from-env", cfg.Instance.Name)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("explicit path missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JET_BACKEND", "remote")
		_, err := Load("")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("wasm without library", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JET_BACKEND", BackendWasm)
		_, err := Load("")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("bad version", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JET_VERSION", "eight")
		_, err := Load("")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestOpen_Memory(t *testing.T) {
	cfg := &Config{Backend: BackendMemory, Version: "6.1", ThreadAffinity: true, Log: LogConfig{Level: "info"}}

	lib, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	mem, ok := lib.(*memory.Library)
	require.True(t, ok)
	assert.Equal(t, capability.Release61, mem.Version())

	opts, err := cfg.RuntimeOptions(nil)
	require.NoError(t, err)
	rt, err := runtime.New(context.Background(), lib, opts...)
	require.NoError(t, err)
	defer func() { _ = rt.Close(context.Background()) }()
	assert.Equal(t, capability.Release61, rt.Capabilities().Version())
}

func TestOpen_WasmMissingFile(t *testing.T) {
	cfg := &Config{Backend: BackendWasm, Library: filepath.Join(t.TempDir(), "none.wasm")}
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRuntimeOptions_Override(t *testing.T) {
	cfg := &Config{Backend: BackendMemory, Version: "10.0", ThreadAffinity: true}
	lib, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	// An override on a non-memory backend wins over the build's own report.
	cfg.Backend = BackendNative
	cfg.Version = "8.0"
	opts, err := cfg.RuntimeOptions(nil)
	require.NoError(t, err)

	rt, err := runtime.New(context.Background(), lib, opts...)
	require.NoError(t, err)
	defer func() { _ = rt.Close(context.Background()) }()
	assert.Equal(t, capability.Release80, rt.Capabilities().Version())
}

func TestLogger(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "warn", Development: true}}
	log, err := cfg.Logger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	t.Cleanup(func() { Install(zap.NewNop()) })

	cfg.Log.Level = "loud"
	_, err = cfg.Logger()
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
