package debug

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

var (
	file    *os.File
	mu      sync.Mutex
	enabled bool
	logger  = newLogger(io.Discard)
)

func newLogger(w io.Writer) *charmlog.Logger {
	return charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
		Level:           charmlog.DebugLevel,
	})
}

// Enable starts debug logging to ~/.config/go-midimodel/debug.log
func Enable() error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(homeDir, ".config", "go-midimodel")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true
	logger = newLogger(f)
	logger.Debug("=== Debug logging started ===", "category", "debug")

	return nil
}

// EnableWriter sends debug output to w. Used by tools that log to stderr.
func EnableWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
	logger = newLogger(w)
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
	logger = newLogger(io.Discard)
}

// Enabled reports whether output is going anywhere.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Logger returns the structured logger. It discards everything while
// logging is disabled.
func Logger() *charmlog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// For returns a logger tagged with a category.
func For(category string) *charmlog.Logger {
	return Logger().With("category", category)
}

// Context stores the current logger in ctx.
func Context(ctx context.Context) context.Context {
	return charmlog.WithContext(ctx, Logger())
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	l := Logger()
	if !Enabled() {
		return
	}
	l.Debug(fmt.Sprintf(format, args...), "category", category)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
