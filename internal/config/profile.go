package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ilogger "jobswarm/internal/logger"

	"github.com/goccy/go-json"
)

// Profile presets run settings. Empty fields leave the built-in default in
// place; Log is a pointer so a profile can force logging off.
type Profile struct {
	Workers     string `json:"workers,omitempty"`
	Shell       string `json:"shell,omitempty"`
	Log         *bool  `json:"log,omitempty"`
	LogDir      string `json:"log_dir,omitempty"`
	Description string `json:"description,omitempty"`
}

type ProfilesConfig struct {
	DefaultProfile string             `json:"default_profile"`
	Profiles       map[string]Profile `json:"profiles"`
}

const DefaultLogDir = "swarmlog"

func boolPtr(v bool) *bool { return &v }

var defaultProfilesConfig = ProfilesConfig{
	DefaultProfile: "default",
	Profiles: map[string]Profile{
		"default": {Workers: "half", Shell: "bash", Log: boolPtr(false), LogDir: DefaultLogDir, Description: "Half of the logical CPUs, output captured"},
		"serial":  {Workers: "1", Shell: "bash", Log: boolPtr(false), LogDir: DefaultLogDir, Description: "One job at a time"},
		"quiet":   {Workers: "half", Shell: "bash", Log: boolPtr(true), LogDir: DefaultLogDir, Description: "Output written to swarm log files"},
	},
}

var (
	profilesConfigOnce   sync.Once
	profilesConfigCached *ProfilesConfig
)

func profilesConfig() *ProfilesConfig {
	profilesConfigOnce.Do(func() {
		profilesConfigCached = loadProfilesConfig()
	})
	if profilesConfigCached == nil {
		return &defaultProfilesConfig
	}
	return profilesConfigCached
}

func loadProfilesConfig() *ProfilesConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		ilogger.LogWarn("failed to resolve home directory for profiles; using defaults", "error", err)
		return &defaultProfilesConfig
	}

	configDir := filepath.Clean(filepath.Join(home, ".jobswarm"))
	configPath := filepath.Clean(filepath.Join(configDir, "profiles.json"))
	rel, err := filepath.Rel(configDir, configPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return &defaultProfilesConfig
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- path is fixed under user home
	if err != nil {
		if !os.IsNotExist(err) {
			ilogger.LogWarn("failed to read profiles; using defaults", "path", configPath, "error", err)
		}
		return &defaultProfilesConfig
	}

	var cfg ProfilesConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		ilogger.LogWarn("failed to parse profiles; using defaults", "path", configPath, "error", err)
		return &defaultProfilesConfig
	}

	cfg.DefaultProfile = strings.TrimSpace(cfg.DefaultProfile)
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = defaultProfilesConfig.DefaultProfile
	}

	merged := make(map[string]Profile, len(cfg.Profiles)+len(defaultProfilesConfig.Profiles))
	for name, p := range defaultProfilesConfig.Profiles {
		merged[name] = p
	}
	for name, p := range cfg.Profiles {
		name = strings.TrimSpace(name)
		if ValidateProfileName(name) != nil {
			ilogger.LogWarn("ignoring profile with invalid name", "name", name)
			continue
		}
		merged[name] = p
	}
	cfg.Profiles = merged

	return &cfg
}

// ResolveProfile returns the named profile with built-in defaults filled in.
// An empty name selects the configured default profile.
func ResolveProfile(name string) (Profile, error) {
	cfg := profilesConfig()
	name = strings.TrimSpace(name)
	if name == "" {
		name = cfg.DefaultProfile
	}
	if err := ValidateProfileName(name); err != nil {
		return Profile{}, err
	}
	p, ok := cfg.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}

	base := defaultProfilesConfig.Profiles["default"]
	if strings.TrimSpace(p.Workers) == "" {
		p.Workers = base.Workers
	}
	if strings.TrimSpace(p.Shell) == "" {
		p.Shell = base.Shell
	}
	if p.Log == nil {
		p.Log = base.Log
	}
	if strings.TrimSpace(p.LogDir) == "" {
		p.LogDir = base.LogDir
	}
	return p, nil
}

func ProfileNames() []string {
	cfg := profilesConfig()
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p Profile) LogEnabled() bool {
	return p.Log != nil && *p.Log
}

func ResetProfilesCacheForTest() {
	profilesConfigCached = nil
	profilesConfigOnce = sync.Once{}
}
