package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/lexmark/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// Quiet suppresses all debug output regardless of flags (set by main for piped output)
var Quiet = false

var (
	debugOutput io.Writer
	debugFile   *os.File
	debugMutex  sync.Mutex
)

// SetQuiet enables quiet mode which suppresses all debug output
func SetQuiet(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	Quiet = enabled
}

// SetDebugOutput sets a custom writer for debug output.
// Pass nil to disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile initializes debug logging to a timestamped file in the temp dir.
// Call CloseDebugLog when done.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "lexmark-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled reports whether debug output is enabled
func IsDebugEnabled() bool {
	debugMutex.Lock()
	quiet := Quiet
	debugMutex.Unlock()
	if quiet {
		return false
	}

	if EnableDebug == "true" {
		return true
	}

	// Runtime override
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Printf prints debug information only when debug mode is enabled and output is configured
func Printf(format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG] "+format, args...)
}

// Log provides structured debug logging with component names
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}

// LogEngine logs engine lifecycle events (start, rehighlight, dispose)
func LogEngine(format string, args ...interface{}) {
	Log("ENGINE", format, args...)
}

// LogScheduler logs batching, cache and pool activity
func LogScheduler(format string, args ...interface{}) {
	Log("SCHED", format, args...)
}

// LogBridge logs mutation bridge activity
func LogBridge(format string, args ...interface{}) {
	Log("BRIDGE", format, args...)
}

// LogRender logs annotation rendering and unwrapping
func LogRender(format string, args ...interface{}) {
	Log("RENDER", format, args...)
}

// LogVocab logs vocabulary loading and watching
func LogVocab(format string, args ...interface{}) {
	Log("VOCAB", format, args...)
}

// Fatal writes a fatal message to the debug log and returns it as an error.
// It never exits; callers decide what to do.
func Fatal(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if w := getDebugWriter(); w != nil {
		fmt.Fprintf(w, "[FATAL] %s", msg)
	}
	return fmt.Errorf("fatal error: %s", msg)
}
