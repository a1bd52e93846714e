package logger

// AppName is the fixed program name used for runner log files.
const AppName = "jobswarm"

// LogPrefixes returns the log file name prefixes cleanup looks for.
func LogPrefixes() []string { return []string{AppName} }

// PrimaryLogPrefix returns the filename prefix for new log files.
func PrimaryLogPrefix() string { return AppName }
