// Package config loads the two-tier YAML settings file (user + project,
// project overrides user) that seeds tapectl's CLI flag defaults.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Latency is either a single constant millisecond value or a [min, max]
// range, decoded from either a YAML scalar or a two-element sequence.
type Latency struct {
	Const    int64
	Min, Max int64
	HasRange bool
}

func (l *Latency) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var n int64
		if err := value.Decode(&n); err != nil {
			return err
		}
		*l = Latency{Const: n}
		return nil
	}
	var pair [2]int64
	if err := value.Decode(&pair); err != nil {
		return err
	}
	*l = Latency{Min: pair[0], Max: pair[1], HasRange: true}
	return nil
}

// Config is the settings-file shape; one instance is decoded per tier.
type Config struct {
	TapesDir    string   `yaml:"tapes_dir,omitempty"`
	Record      string   `yaml:"record,omitempty"`
	Fallback    string   `yaml:"fallback,omitempty"`
	Latency     *Latency `yaml:"latency,omitempty"`
	ErrorRate   *uint8   `yaml:"error_rate,omitempty"`
	Summary     *bool    `yaml:"summary,omitempty"`
	AllowEnv    []string `yaml:"allow_env,omitempty"`
	IgnoreEnv   []string `yaml:"ignore_env,omitempty"`
	IgnoreArgs  []string `yaml:"ignore_args,omitempty"`
	IgnoreStdin bool     `yaml:"ignore_stdin,omitempty"`
	Seed        *uint64  `yaml:"seed,omitempty"`
}

// Manager loads the user and project tiers and exposes their merge. CLI
// flags are applied on top of Get()'s result by the caller; Manager only
// owns the two file tiers.
type Manager struct {
	userConfig    Config
	projectConfig Config
	merged        Config
}

// NewManager builds an empty Manager; call Load to populate it.
func NewManager() *Manager {
	return &Manager{}
}

// UserConfigPath returns the default user-tier path under userConfigDir
// (typically os.UserConfigDir()).
func UserConfigPath(userConfigDir string) string {
	return filepath.Join(userConfigDir, "tapectl", "config.yaml")
}

// ProjectConfigPath returns the default project-tier path rooted at
// projectDir.
func ProjectConfigPath(projectDir string) string {
	return filepath.Join(projectDir, ".tapectl.yaml")
}

// Load reads both tiers (a missing file is not an error) and merges them,
// project values overriding user values field by field.
func (m *Manager) Load(userConfigDir, projectDir string) error {
	if err := loadYAML(UserConfigPath(userConfigDir), &m.userConfig); err != nil {
		return err
	}
	if err := loadYAML(ProjectConfigPath(projectDir), &m.projectConfig); err != nil {
		return err
	}
	m.merge()
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) merge() {
	m.merged = Config{
		TapesDir:    firstNonEmpty(m.projectConfig.TapesDir, m.userConfig.TapesDir, "./tapes"),
		Record:      firstNonEmpty(m.projectConfig.Record, m.userConfig.Record, "new"),
		Fallback:    firstNonEmpty(m.projectConfig.Fallback, m.userConfig.Fallback, "not_found"),
		Latency:     firstLatency(m.projectConfig.Latency, m.userConfig.Latency),
		ErrorRate:   firstUint8(m.projectConfig.ErrorRate, m.userConfig.ErrorRate),
		Summary:     firstBool(m.projectConfig.Summary, m.userConfig.Summary),
		AllowEnv:    firstSlice(m.projectConfig.AllowEnv, m.userConfig.AllowEnv),
		IgnoreEnv:   firstSlice(m.projectConfig.IgnoreEnv, m.userConfig.IgnoreEnv),
		IgnoreArgs:  firstSlice(m.projectConfig.IgnoreArgs, m.userConfig.IgnoreArgs),
		IgnoreStdin: m.projectConfig.IgnoreStdin || m.userConfig.IgnoreStdin,
		Seed:        firstUint64(m.projectConfig.Seed, m.userConfig.Seed),
	}
}

// Get returns the merged view of both tiers.
func (m *Manager) Get() Config { return m.merged }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstSlice(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}

func firstLatency(a, b *Latency) *Latency {
	if a != nil {
		return a
	}
	return b
}

func firstUint8(a, b *uint8) *uint8 {
	if a != nil {
		return a
	}
	return b
}

func firstUint64(a, b *uint64) *uint64 {
	if a != nil {
		return a
	}
	return b
}

func firstBool(a, b *bool) *bool {
	if a != nil {
		return a
	}
	return b
}
