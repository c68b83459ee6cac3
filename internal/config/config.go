// Package config loads the static registries (config/REPOS.json,
// config/LLM_PROFILES.json), the optional lane.yaml ambient knobs, and
// resolves every persisted artifact path. All process-wide dependencies
// the core needs (threshold, clock, oracle, paths) are surfaced here as
// plain values so callers can inject them.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lanea/internal/types"
)

// Defaults for the ambient knobs.
const (
	DefaultStaleThresholdMinutes = 30
	MinStaleThresholdMinutes     = 1
	MaxStaleThresholdMinutes     = 1440
	DefaultMaxQuestions          = 7
	DefaultMaxBoundChangeReqs    = 10
)

// LaneConfig carries the ambient knobs from config/lane.yaml.
type LaneConfig struct {
	StaleThresholdMinutes int           `yaml:"stale_threshold_minutes"`
	MaxQuestions          int           `yaml:"max_questions"`
	CommitteePool         int           `yaml:"committee_pool"`
	GitTimeout            string        `yaml:"git_timeout"`
	Logging               LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultLaneConfig returns the knobs used when lane.yaml is absent.
func DefaultLaneConfig() LaneConfig {
	return LaneConfig{
		StaleThresholdMinutes: DefaultStaleThresholdMinutes,
		MaxQuestions:          DefaultMaxQuestions,
		CommitteePool:         defaultPoolSize(),
		GitTimeout:            "30s",
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultPoolSize() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

// LoadLaneConfig reads lane.yaml if present, applies env overrides, and
// clamps the staleness threshold into its allowed range.
func LoadLaneConfig(p Paths) (LaneConfig, error) {
	cfg := DefaultLaneConfig()

	data, err := os.ReadFile(p.LaneConfigFile())
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", p.LaneConfigFile(), err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", p.LaneConfigFile(), err)
	}

	applyEnvOverrides(&cfg)

	if cfg.StaleThresholdMinutes < MinStaleThresholdMinutes {
		cfg.StaleThresholdMinutes = MinStaleThresholdMinutes
	}
	if cfg.StaleThresholdMinutes > MaxStaleThresholdMinutes {
		cfg.StaleThresholdMinutes = MaxStaleThresholdMinutes
	}
	if cfg.MaxQuestions < 1 {
		cfg.MaxQuestions = DefaultMaxQuestions
	}
	if cfg.CommitteePool < 1 {
		cfg.CommitteePool = defaultPoolSize()
	}
	return cfg, nil
}

// Env override names. Env wins over lane.yaml, which wins over defaults.
const (
	EnvStaleThreshold = "LANEA_STALE_THRESHOLD_MINUTES"
	EnvMaxQuestions   = "LANEA_MAX_QUESTIONS"
	EnvCommitteePool  = "LANEA_COMMITTEE_POOL"
)

func applyEnvOverrides(cfg *LaneConfig) {
	if v := os.Getenv(EnvStaleThreshold); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StaleThresholdMinutes = n
		}
	}
	if v := os.Getenv(EnvMaxQuestions); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxQuestions = n
		}
	}
	if v := os.Getenv(EnvCommitteePool); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CommitteePool = n
		}
	}
}

// StaleThreshold returns the configured hard-stale age threshold.
func (c LaneConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMinutes) * time.Minute
}

// GitTimeoutDuration parses the git timeout knob, defaulting to 30s.
func (c LaneConfig) GitTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.GitTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ---------------------------------------------------------------------------
// Repo registry
// ---------------------------------------------------------------------------

// LoadRepoRegistry reads and validates config/REPOS.json. The registry is a
// closed schema: unknown fields are rejected.
func LoadRepoRegistry(p Paths) (*types.RepoRegistry, error) {
	data, err := os.ReadFile(p.ReposConfigFile())
	if err != nil {
		return nil, fmt.Errorf("read repo registry: %w (run the project initializer to create config/REPOS.json)", err)
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	var reg types.RepoRegistry
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("parse config/REPOS.json: %w", err)
	}

	for id, repo := range reg.Repos {
		if repo.Path == "" {
			return nil, fmt.Errorf("repo %s: path is required", id)
		}
		if repo.Status != types.RepoStatusActive && repo.Status != types.RepoStatusRetired {
			return nil, fmt.Errorf("repo %s: status %q is not active|retired", id, repo.Status)
		}
	}
	return &reg, nil
}

// ActiveRepoIDs returns the sorted ids of all active repos.
func ActiveRepoIDs(reg *types.RepoRegistry) []string {
	ids := make([]string, 0, len(reg.Repos))
	for id, repo := range reg.Repos {
		if repo.Status == types.RepoStatusActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RepoAbsPath resolves a repo's working tree under the registry base dir.
// Returns "" when the repo is not registered.
func RepoAbsPath(reg *types.RepoRegistry, opsRoot, repoID string) string {
	repo, ok := reg.Repos[repoID]
	if !ok {
		return ""
	}
	base := reg.BaseDir
	if base == "" {
		base = opsRoot
	} else if !filepath.IsAbs(base) {
		base = filepath.Join(opsRoot, base)
	}
	return filepath.Join(base, repo.Path)
}

// ---------------------------------------------------------------------------
// LLM profiles
// ---------------------------------------------------------------------------

// LLMProfile names an oracle endpoint. The API key is resolved from the
// named environment variable, never stored in the registry.
type LLMProfile struct {
	Provider  string `json:"provider"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	APIKeyEnv string `json:"api_key_env"`
	Timeout   string `json:"timeout,omitempty"`
}

// LLMProfiles is the parsed config/LLM_PROFILES.json.
type LLMProfiles struct {
	Default  string                `json:"default"`
	Profiles map[string]LLMProfile `json:"profiles"`
}

// LoadLLMProfiles reads config/LLM_PROFILES.json.
func LoadLLMProfiles(p Paths) (*LLMProfiles, error) {
	data, err := os.ReadFile(p.LLMProfilesFile())
	if err != nil {
		return nil, fmt.Errorf("read LLM profiles: %w (create config/LLM_PROFILES.json)", err)
	}
	var profiles LLMProfiles
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse config/LLM_PROFILES.json: %w", err)
	}
	return &profiles, nil
}

// Resolve returns the named profile, or the default when name is empty.
func (l *LLMProfiles) Resolve(name string) (LLMProfile, error) {
	if name == "" {
		name = l.Default
	}
	profile, ok := l.Profiles[name]
	if !ok {
		return LLMProfile{}, fmt.Errorf("LLM profile %q not found", name)
	}
	return profile, nil
}
