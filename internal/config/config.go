package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// ReportFormat names a report renderer.
type ReportFormat string

const (
	ReportFormatTable    ReportFormat = "table"
	ReportFormatMarkdown ReportFormat = "markdown"
	ReportFormatXLSX     ReportFormat = "xlsx"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Server   ServerConfig   `toml:"server"`
	Timer    TimerConfig    `toml:"timer"`
	Report   ReportConfig   `toml:"report"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	HTTPBind       string   `toml:"http_bind"`
	APIEndpoint    string   `toml:"api_endpoint"`
	MCPEndpoint    string   `toml:"mcp_endpoint"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type TimerConfig struct {
	StopOnExit bool `toml:"stop_on_exit"`
}

type ReportConfig struct {
	DefaultFormat ReportFormat `toml:"default_format"`
	RecentLimit   int          `toml:"recent_limit"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     "",
			},
		},
		Server: ServerConfig{
			HTTPBind:       "127.0.0.1:5437",
			APIEndpoint:    "/api/v1",
			MCPEndpoint:    "/mcp",
			AllowedOrigins: []string{"http://localhost", "http://127.0.0.1"},
		},
		Timer: TimerConfig{
			StopOnExit: false,
		},
		Report: ReportConfig{
			DefaultFormat: ReportFormatTable,
			RecentLimit:   10,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if !strings.HasPrefix(strings.TrimSpace(endpoint), "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}

	switch c.Report.DefaultFormat {
	case ReportFormatTable, ReportFormatMarkdown, ReportFormatXLSX:
	default:
		return fmt.Errorf("invalid report.default_format: %q", c.Report.DefaultFormat)
	}
	if c.Report.RecentLimit < 0 {
		return errors.New("report.recent_limit must be >= 0")
	}

	return nil
}

// Save writes cfg as TOML, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	content, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	return os.WriteFile(path, content, 0o644)
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
