package shpipe

import (
	"context"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config carries the per-invocation settings that would otherwise be
// process-wide globals: the interpreter argv the command text is
// appended to, default environment overrides for the child, and the
// debug trace toggle. A Config is a value; invocations never share
// mutable state, so concurrent invocations with separate (or equal)
// Configs are safe.
type Config struct {
	Interpreter []string          `envconfig:"INTERPRETER" default:"/bin/bash,-c"`
	Env         map[string]string `envconfig:"ENV"`
	Trace       bool              `envconfig:"TRACE"`
	Logger      *zap.Logger       `ignored:"true"`
}

// DefaultConfig returns the stock configuration: /bin/bash -c, no
// environment overrides, tracing off.
func DefaultConfig() Config {
	return Config{Interpreter: []string{"/bin/bash", "-c"}}
}

// ConfigFromEnv builds a Config from SHPIPE_* environment variables:
// SHPIPE_INTERPRETER (comma-separated argv), SHPIPE_ENV
// (key:value,key:value), SHPIPE_TRACE.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("shpipe", &cfg); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if len(c.Interpreter) == 0 {
		c.Interpreter = []string{"/bin/bash", "-c"}
	}
	return c
}

// traceLogger returns the logger pipe events go to: Logger when
// tracing is enabled, a nop logger otherwise. Tracing is a side
// channel, never required for correctness.
func (c Config) traceLogger() *zap.Logger {
	if !c.Trace {
		return zap.NewNop()
	}
	if c.Logger != nil {
		return c.Logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

type configKey struct{}

// WithConfig returns a derived context carrying cfg. Run and RunResult
// consult the context before falling back to DefaultConfig.
//
//	ctx := shpipe.WithConfig(context.Background(), shpipe.Config{
//		Interpreter: []string{"/bin/sh", "-c"},
//		Trace:       true,
//	})
//	out, ok := shpipe.Run(ctx, "tr a-z A-Z", []byte("hi"), nil)
func WithConfig(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFromContext(ctx context.Context) Config {
	if ctx == nil {
		return DefaultConfig()
	}
	if cfg, ok := ctx.Value(configKey{}).(Config); ok {
		return cfg
	}
	return DefaultConfig()
}
