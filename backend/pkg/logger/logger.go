// Package logger holds the process-wide zap logger. Components ask for a named child
// with Named so every line carries its origin.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
	level  = zap.NewAtomicLevelAt(zap.DebugLevel)
)

// Init builds the global logger. Production emits JSON at info, anything else emits
// colored console lines at debug. The level can be changed later with SetLevel.
func Init(env string) error {
	cfg := buildConfig(env)
	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	global = built
	mu.Unlock()
	return nil
}

func buildConfig(env string) zap.Config {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		level.SetLevel(zap.InfoLevel)
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		level.SetLevel(zap.DebugLevel)
	}
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{"service": "promptcanvas"}
	return cfg
}

// SetLevel adjusts the global logger's level by name (debug, info, warn, error).
// An empty name leaves it unchanged.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current global level
func Level() zapcore.Level {
	return level.Level()
}

// Sync flushes any buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		_ = global.Sync()
	}
}

// Get returns the global logger. Before Init it returns a development logger built
// once, so packages used from tests still log.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		cfg := buildConfig("development")
		built, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		global = built
	}
	return global
}

// Named returns the global logger scoped to a component
func Named(component string) *zap.Logger {
	return Get().Named(component)
}
