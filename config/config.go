// Package config loads runtime settings from defaults, an optional file and
// JET_ environment variables, and turns them into a loaded engine build and
// runtime options.
package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/callback"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/engine"
	"github.com/wippyai/jet-runtime/engine/memory"
	"github.com/wippyai/jet-runtime/engine/native"
	"github.com/wippyai/jet-runtime/errors"
	"github.com/wippyai/jet-runtime/resource"
	"github.com/wippyai/jet-runtime/runtime"
)

// Backend kinds.
const (
	BackendMemory = "memory"
	BackendWasm   = "wasm"
	BackendNative = "native"
)

// EnvPrefix prefixes every environment override: instance.name is read
// from JET_INSTANCE_NAME.
const EnvPrefix = "JET"

// Config is the full runtime configuration.
type Config struct {
	Backend        string         `mapstructure:"backend"`
	Library        string         `mapstructure:"library"`
	Version        string         `mapstructure:"version"`
	ThreadAffinity bool           `mapstructure:"thread_affinity"`
	Instance       InstanceConfig `mapstructure:"instance"`
	Log            LogConfig      `mapstructure:"log"`
}

// InstanceConfig names the instance created by tools.
type InstanceConfig struct {
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"display_name"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("backend", BackendMemory)
	v.SetDefault("library", "")
	v.SetDefault("version", "")
	v.SetDefault("thread_affinity", true)
	v.SetDefault("instance.name", "")
	v.SetDefault("instance.display_name", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. With an empty path, jet.{yaml,toml,json}
// in the working directory is used when present; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("jet")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the backend selection and the version override.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendWasm, BackendNative:
		if c.Library == "" {
			return errors.InvalidInput(errors.PhaseConfig, c.Backend+" backend needs a library path")
		}
	default:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.Version != "" {
		if _, err := capability.ParseVersion(c.Version); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "version")
		}
	}
	return nil
}

// Open loads the configured engine build. The memory backend simulates the
// configured version, or the newest release when none is set.
func Open(ctx context.Context, c *Config) (jetruntime.Library, error) {
	switch c.Backend {
	case BackendWasm:
		lib, err := engine.LoadFile(ctx, c.Library, &engine.Config{Name: c.Library})
		if err != nil {
			return nil, err
		}
		return lib, nil
	case BackendNative:
		lib, err := native.Open(c.Library)
		if err != nil {
			return nil, err
		}
		return lib, nil
	case BackendMemory:
		var opts []memory.Option
		if c.Version != "" {
			v, err := capability.ParseVersion(c.Version)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "version")
			}
			opts = append(opts, memory.WithVersion(v))
		}
		return memory.New(opts...), nil
	default:
		return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown backend %q", c.Backend))
	}
}

// RuntimeOptions converts the configuration to runtime options. The logger
// is passed separately since it is usually built once per process.
func (c *Config) RuntimeOptions(log *zap.Logger) ([]runtime.Option, error) {
	opts := []runtime.Option{runtime.WithThreadAffinity(c.ThreadAffinity)}
	if log != nil {
		opts = append(opts, runtime.WithLogger(log))
	}
	if c.Version != "" && c.Backend != BackendMemory {
		v, err := capability.ParseVersion(c.Version)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "version")
		}
		opts = append(opts, runtime.WithVersionOverride(v))
	}
	return opts, nil
}

// InstanceOptions returns the configured instance name and options. An
// empty name lets the runtime generate one.
func (c *Config) InstanceOptions() (string, runtime.InstanceOptions) {
	return c.Instance.Name, runtime.InstanceOptions{DisplayName: c.Instance.DisplayName}
}

// Logger builds the configured logger and installs it in every package that
// logs through a package-level logger.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	log, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	Install(log)
	return log, nil
}

// Install sets l as the package logger of every runtime package.
func Install(l *zap.Logger) {
	callback.SetLogger(l)
	dispatch.SetLogger(l)
	resource.SetLogger(l)
	runtime.SetLogger(l)
	engine.SetLogger(l)
	native.SetLogger(l)
}
