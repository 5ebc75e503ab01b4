package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"workboard/internal/board"
)

// Config covers both the reference server and the client surfaces.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	View   ViewConfig   `yaml:"view"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	BasePath  string `yaml:"base_path"`
	Workspace string `yaml:"workspace"`
	// JWTSecret turns on bearer auth when set.
	JWTSecret          string   `yaml:"jwt_secret"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	MaxAttachmentBytes int64    `yaml:"max_attachment_bytes"`
}

type ClientConfig struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	DebounceMS int    `yaml:"debounce_ms"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	StateDir   string `yaml:"state_dir"`
	Namespace  string `yaml:"namespace"`
}

type ViewConfig struct {
	Dimension    string `yaml:"dimension"`
	DoneCap      int    `yaml:"done_cap"`
	SummaryCap   int    `yaml:"summary_cap"`
	StartHour    int    `yaml:"start_hour"`
	EndHour      int    `yaml:"end_hour"`
	ShowWeekends bool   `yaml:"show_weekends"`
}

// Debounce is the coalescing window for free-text edits.
func (c ClientConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	if c.Server.MaxAttachmentBytes < 0 {
		return fmt.Errorf("server.max_attachment_bytes must not be negative")
	}
	if c.Client.DebounceMS < 0 {
		return fmt.Errorf("client.debounce_ms must not be negative")
	}
	if c.Client.TimeoutMS <= 0 {
		return fmt.Errorf("client.timeout_ms must be positive")
	}
	if strings.ContainsAny(c.Client.Namespace, `/\`) {
		return fmt.Errorf("client.namespace must not contain path separators")
	}
	if _, err := board.ParseDimension(c.View.Dimension); err != nil {
		return fmt.Errorf("view.dimension: %w", err)
	}
	if c.View.DoneCap < 0 || c.View.SummaryCap < 0 {
		return fmt.Errorf("view caps must not be negative")
	}
	if c.View.StartHour < 0 || c.View.EndHour > 24 || c.View.StartHour >= c.View.EndHour {
		return fmt.Errorf("view hours must satisfy 0 <= start_hour < end_hour <= 24")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "workboard.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with wb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(DefaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const DefaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  workspace: .
  jwt_secret: ""
  allowed_origins: ["*"]
  max_attachment_bytes: 10485760

client:
  url: http://127.0.0.1:8080
  token: ""
  debounce_ms: 1000
  timeout_ms: 10000
  state_dir: ~/.workboard
  namespace: default

view:
  dimension: status
  done_cap: 20
  summary_cap: 3
  start_hour: 7
  end_hour: 20
  show_weekends: false
`
