package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks spawned goroutines for diagnostics
var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs a function in a goroutine with panic recovery.
// Panics are logged but don't crash the service.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				stackTrace := string(buf[:n])

				if logger != nil {
					logger.Error().
						Str("goroutine", name).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", stackTrace).
						Msg("Recovered from panic in goroutine - continuing service operation")
				} else {
					fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stackTrace)
				}

				writeCrashLog(name, r, stackTrace)
			}
		}()

		fn()
	}()
}

// CrashLogDir is the directory where crash files will be written.
// Set during application initialization.
var CrashLogDir = "./logs"

// writeCrashLog writes a non-fatal crash log entry for goroutine panics.
func writeCrashLog(goroutineName string, panicVal interface{}, stackTrace string) {
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		return
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	filename := fmt.Sprintf("goroutine-panic-%s.log", timestamp)
	path := filepath.Join(CrashLogDir, filename)

	report := fmt.Sprintf("Time: %s\nGoroutine: %s\nVersion: %s\n\nPanic: %v\n\n%s\n",
		time.Now().Format(time.RFC3339), goroutineName, GetFullVersion(), panicVal, stackTrace)

	_ = os.WriteFile(path, []byte(report), 0644)
}
