package logger

import "sync/atomic"

var loggerPtr atomic.Pointer[Logger]

// SetLogger installs l as the process-wide logger used by the Log* helpers.
func SetLogger(l *Logger) { loggerPtr.Store(l) }

// CloseLogger detaches and closes the active logger.
func CloseLogger() error {
	l := loggerPtr.Swap(nil)
	if l == nil {
		return nil
	}
	return l.Close()
}

func ActiveLogger() *Logger { return loggerPtr.Load() }

func LogDebug(msg string, kv ...any) { ActiveLogger().Debug(msg, kv...) }
func LogInfo(msg string, kv ...any)  { ActiveLogger().Info(msg, kv...) }
func LogWarn(msg string, kv ...any)  { ActiveLogger().Warn(msg, kv...) }
func LogError(msg string, kv ...any) { ActiveLogger().Error(msg, kv...) }

func logWarn(msg string) { LogWarn(msg) }
