// Package logger provides the process-wide structured logger used across
// every component of the retrieval engine.
package logger

import (
	"fmt"
	"log/slog"
	"os"
)

var instance *slog.Logger

// InitError represents logger initialization errors.
type InitError struct {
	Op  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("logger: %s failed: %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Init initializes the global logger with a JSON handler at info level.
func Init() error {
	return InitWithConfig(slog.HandlerOptions{Level: slog.LevelInfo})
}

// InitWithConfig initializes the logger with custom slog handler options.
func InitWithConfig(opts slog.HandlerOptions) error {
	handler := slog.NewJSONHandler(os.Stdout, &opts)
	instance = slog.New(handler)
	return nil
}

// Get returns the global logger, lazily initializing it if needed.
func Get() *slog.Logger {
	if instance == nil {
		_ = Init()
	}
	return instance
}

// MustGet returns the global logger or panics if Init was never called.
func MustGet() *slog.Logger {
	if instance == nil {
		panic("logger: not initialized, call Init() first")
	}
	return instance
}

// IsInitialized reports whether the logger has been initialized.
func IsInitialized() bool {
	return instance != nil
}
