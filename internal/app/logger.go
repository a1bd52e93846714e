package app

import ilogger "jobswarm/internal/logger"

type Logger = ilogger.Logger
type CleanupStats = ilogger.CleanupStats

func NewLogger() (*Logger, error) { return ilogger.NewLogger() }

func setLogger(l *Logger) { ilogger.SetLogger(l) }

func closeLogger() error { return ilogger.CloseLogger() }

func activeLogger() *Logger { return ilogger.ActiveLogger() }

func logInfo(msg string, kv ...any) { ilogger.LogInfo(msg, kv...) }

func logWarn(msg string, kv ...any) { ilogger.LogWarn(msg, kv...) }

func logError(msg string, kv ...any) { ilogger.LogError(msg, kv...) }
