// internal/message/message.go
package message

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	quiet     bool
	silent    bool
	mutex     sync.RWMutex
	outWriter io.Writer = os.Stdout

	// Color definitions
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// SetQuiet enables/disables user messages
func SetQuiet(q bool) {
	mutex.Lock()
	defer mutex.Unlock()
	quiet = q
}

// SetNoColor enables/disables colored output
func SetNoColor(nc bool) {
	mutex.Lock()
	defer mutex.Unlock()
	color.NoColor = nc
}

// SetSilent enables/disables all messages
func SetSilent(s bool) {
	mutex.Lock()
	defer mutex.Unlock()
	silent = s
}

// SetOutput changes the output writer (useful for testing)
func SetOutput(w io.Writer) {
	mutex.Lock()
	defer mutex.Unlock()
	outWriter = w
}

func emit(c *color.Color, format string, args ...any) {
	mutex.RLock()
	defer mutex.RUnlock()
	if quiet || silent {
		return
	}
	c.Fprintf(outWriter, format+"\n", args...)
}

// Info prints an informational message
func Info(format string, args ...any) {
	emit(infoColor, format, args...)
}

// Success prints a success message
func Success(format string, args ...any) {
	emit(successColor, format, args...)
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	emit(warningColor, format, args...)
}

// Error prints an error message; it is shown even in quiet mode
func Error(format string, args ...any) {
	mutex.RLock()
	defer mutex.RUnlock()
	if silent {
		return
	}
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
}

// Fatal prints an error message and exits
func Fatal(format string, args ...any) {
	Error(format, args...)
	os.Exit(1)
}
