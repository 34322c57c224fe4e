// Package logger provides levelled logging for the pipeline.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool

	debugLogger = log.New(os.Stderr, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	infoLogger  = log.New(os.Stderr, "INFO: ", log.Ldate|log.Ltime)
	warnLogger  = log.New(os.Stderr, "WARN: ", log.Ldate|log.Ltime)
	errorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
)

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	mu.Lock()
	verbose = v
	mu.Unlock()
}

// IsVerbose reports whether debug output is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects every level to w.
func SetOutput(w io.Writer) {
	debugLogger.SetOutput(w)
	infoLogger.SetOutput(w)
	warnLogger.SetOutput(w)
	errorLogger.SetOutput(w)
}

// Debug logs only when verbose mode is on.
func Debug(format string, v ...any) {
	if IsVerbose() {
		_ = debugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func Info(format string, v ...any) {
	_ = infoLogger.Output(2, fmt.Sprintf(format, v...))
}

func Warn(format string, v ...any) {
	_ = warnLogger.Output(2, fmt.Sprintf(format, v...))
}

func Error(format string, v ...any) {
	_ = errorLogger.Output(2, fmt.Sprintf(format, v...))
}
