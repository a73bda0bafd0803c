// Package log provides the singleton, lumberjack-backed logger shared by
// every agentrt subsystem, adapted from the teacher's pkg/utils/logger.go.
package log

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a rotating file sink with leveled, optionally-JSON output.
type Logger struct {
	out           *log.Logger
	jsonMode      bool
	correlationID string
}

var (
	global Logger
	once   sync.Once
)

// Get returns the process-wide Logger, initializing its rotating file
// sink on first call. dir is the directory settings/logs live under
// (normally $AGENTRT_HOME); logs are written to <dir>/agentrt.log.
func Get(dir string) *Logger {
	once.Do(func() {
		sink := &lumberjack.Logger{
			Filename:   dir + "/agentrt.log",
			MaxSize:    15, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		global = Logger{out: log.New(sink, "", log.LstdFlags)}
	})
	if os.Getenv("AGENTRT_JSON_LOGS") == "1" {
		global.jsonMode = true
	}
	if cid := os.Getenv("AGENTRT_CORRELATION_ID"); cid != "" {
		global.correlationID = cid
	}
	return &global
}

func (l *Logger) write(level, msg string) {
	if l.jsonMode {
		entry := map[string]any{"level": level, "msg": msg}
		if l.correlationID != "" {
			entry["cid"] = l.correlationID
		}
		_ = json.NewEncoder(l.out.Writer()).Encode(entry)
		return
	}
	l.out.Printf("[%s] %s", level, msg)
}

// Infof logs an informational message.
func (l *Logger) Infof(format string, args ...interface{}) { l.write("info", fmt.Sprintf(format, args...)) }

// Warnf logs a warning.
func (l *Logger) Warnf(format string, args ...interface{}) { l.write("warn", fmt.Sprintf(format, args...)) }

// Errorf logs an error.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.write("error", fmt.Sprintf(format, args...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.write("debug", fmt.Sprintf(format, args...))
}

// Close releases the underlying rotating file handle.
func (l *Logger) Close() error {
	if sink, ok := l.out.Writer().(*lumberjack.Logger); ok {
		return sink.Close()
	}
	return nil
}
