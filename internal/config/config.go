package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Dashboard Dashboard `yaml:"dashboard"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type Dashboard struct {
	Title      string   `yaml:"title"`
	Subtitle   string   `yaml:"subtitle"`
	Connection string   `yaml:"connection"`
	CacheTTL   Duration `yaml:"cache_ttl"`
	Queries    Queries  `yaml:"queries"`
	KPI        KPI      `yaml:"kpi"`
	Chart      Chart    `yaml:"chart"`
	Status     Status   `yaml:"status"`
}

type Queries struct {
	Impact string `yaml:"impact"`
	Policy string `yaml:"policy"`
}

// KPI controls how impact rows are bound to the card slots.
type KPI struct {
	// Slots names the indicator shown in each card, in display order.
	// When empty, the first Count rows are bound by position.
	Slots   []string `yaml:"slots"`
	Count   int      `yaml:"count"`
	Missing string   `yaml:"missing"` // "pad" or "fail"
}

type Chart struct {
	Height int `yaml:"height"`
}

type Status struct {
	Panels   []Panel  `yaml:"panels"`
	Progress Progress `yaml:"progress"`
}

type Panel struct {
	Severity string `yaml:"severity"` // error, warning, info
	Markdown string `yaml:"markdown"`
}

type Progress struct {
	Label    string  `yaml:"label"`
	Fraction float64 `yaml:"fraction"`
	Text     string  `yaml:"text"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Duration is a time.Duration that unmarshals from strings like "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// KPI binding policies.
const (
	MissingPad  = "pad"
	MissingFail = "fail"
)

// ConfigDir returns the XDG config directory for resultsdash.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "resultsdash")
}

// DataDir returns the XDG data directory for resultsdash.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "resultsdash")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/resultsdash/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'resultsdash init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Dashboard: Dashboard{
			Title:      "UNICEF Kenya: Upstream Results & Enabling Environment",
			Subtitle:   "Strategic Monitoring & Results-Based Management Dashboard",
			Connection: "snowflake",
			CacheTTL:   Duration{10 * time.Minute},
			Queries: Queries{
				Impact: "SELECT * FROM UNICEF_PME.KENYA_DASHBOARD.IMPACT_TRENDS",
				Policy: "SELECT * FROM UNICEF_PME.KENYA_DASHBOARD.POLICY_TRACKER",
			},
			KPI:   KPI{Count: 4, Missing: MissingPad},
			Chart: Chart{Height: 350},
			Status: Status{
				Progress: Progress{
					Label:    "National System Reporting Timeliness",
					Fraction: 0.94,
					Text:     "94% Reporting (Target: 90%)",
				},
			},
		},
		Server:  Server{Host: "127.0.0.1", Port: 8501},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Dashboard.Status.Panels) == 0 {
		cfg.Dashboard.Status.Panels = defaultPanels()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultPanels() []Panel {
	return []Panel{
		{Severity: "error", Markdown: "**Exchequer Delays:** High impact on Turkana WASH projects."},
		{Severity: "warning", Markdown: "**Data Gap:** DHIS2 reporting lag in North Eastern region."},
		{Severity: "info", Markdown: "**Policy Milestone:** Section 20 guidelines successfully gazetted."},
	}
}

func (c *Config) validate() error {
	d := c.Dashboard
	if d.CacheTTL.Duration <= 0 {
		return fmt.Errorf("dashboard.cache_ttl must be positive, got %s", d.CacheTTL)
	}
	switch d.KPI.Missing {
	case MissingPad, MissingFail:
	default:
		return fmt.Errorf("dashboard.kpi.missing must be %q or %q, got %q", MissingPad, MissingFail, d.KPI.Missing)
	}
	if len(d.KPI.Slots) == 0 && d.KPI.Count <= 0 {
		return fmt.Errorf("dashboard.kpi.count must be positive when no slots are named")
	}
	for i, p := range d.Status.Panels {
		switch p.Severity {
		case "error", "warning", "info", "success":
		default:
			return fmt.Errorf("dashboard.status.panels[%d]: unknown severity %q", i, p.Severity)
		}
	}
	return nil
}

// SlotCount returns the number of KPI cards on the page.
func (k KPI) SlotCount() int {
	if len(k.Slots) > 0 {
		return len(k.Slots)
	}
	return k.Count
}

// Addr returns the listen address for the HTTP server.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(p string) string {
	if p == "~" {
		return homeDir()
	}
	if len(p) > 1 && p[0] == '~' && (p[1] == '/' || p[1] == filepath.Separator) {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}
