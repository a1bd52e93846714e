package config

import (
	"fmt"
	"os"
	"strings"
)

// Config holds the resolved settings for one `jobswarm run` invocation.
type Config struct {
	Workers     string // worker directive, see pool.ParseWorkers
	Shell       string
	Log         bool
	LogDir      string
	Format      string
	WorkDir     string
	Profile     string
	LedgerPath  string
	SkipDone    bool
	MetricsFile string
	JSONOutput  bool
	FullOutput  bool
	Names       []string
	Commands    []string
	Source      string // manifest path, "-" for stdin, "" when Commands is used
}

// EnvFlagEnabled returns true when the environment variable exists and is not
// explicitly set to a falsey value ("0/false/no/off").
func EnvFlagEnabled(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	switch strings.TrimSpace(strings.ToLower(val)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func ParseBoolFlag(val string, defaultValue bool) bool {
	switch strings.TrimSpace(strings.ToLower(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ValidateProfileName accepts [A-Za-z0-9_-]+ so a name can never escape the
// profiles directory.
func ValidateProfileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("profile name is empty")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-', r == '_':
		default:
			return fmt.Errorf("profile name %q contains invalid character %q", name, r)
		}
	}
	return nil
}
