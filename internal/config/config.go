package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Theme     ThemeConfig    `toml:"theme"`
	LogLevels LogLevelConfig `toml:"log_levels"`
	Display   DisplayConfig  `toml:"display"`
	Logging   LoggingConfig  `toml:"logging"`
}

// ThemeConfig defines color schemes
type ThemeConfig struct {
	Name          string         `toml:"name"`
	StatusBar     string         `toml:"status_bar"`
	StatusBarText string         `toml:"status_bar_text"`
	SearchMatch   string         `toml:"search_match"`
	FileBoundary  string         `toml:"file_boundary"`
	OffsetTime    string         `toml:"offset_time"`
	AdjustedTime  string         `toml:"adjusted_time"`
	SkewedTime    string         `toml:"skewed_time"`
	AltRow        string         `toml:"alt_row"`
	AccelUp       string         `toml:"accel_up"`
	AccelDown     string         `toml:"accel_down"`
	IdentPalette  []string       `toml:"ident_palette"`
	Levels        LogLevelColors `toml:"levels"`
}

// LogLevelColors defines colors for each log level
type LogLevelColors struct {
	Trace    string `toml:"trace"`
	Debug    string `toml:"debug"`
	Info     string `toml:"info"`
	Stats    string `toml:"stats"`
	Notice   string `toml:"notice"`
	Warn     string `toml:"warn"`
	Error    string `toml:"error"`
	Critical string `toml:"critical"`
	Fatal    string `toml:"fatal"`
}

// LogLevelConfig defines log level detection patterns
type LogLevelConfig struct {
	TracePatterns    []string `toml:"trace_patterns"`
	DebugPatterns    []string `toml:"debug_patterns"`
	InfoPatterns     []string `toml:"info_patterns"`
	StatsPatterns    []string `toml:"stats_patterns"`
	NoticePatterns   []string `toml:"notice_patterns"`
	WarnPatterns     []string `toml:"warn_patterns"`
	ErrorPatterns    []string `toml:"error_patterns"`
	CriticalPatterns []string `toml:"critical_patterns"`
	FatalPatterns    []string `toml:"fatal_patterns"`
}

// DisplayConfig holds display options
type DisplayConfig struct {
	ShowFilename   bool `toml:"show_filename"`
	ShowBasename   bool `toml:"show_basename"`
	ShowTimeOffset bool `toml:"show_time_offset"`
	TabWidth       int  `toml:"tab_width"`
	HistorySize    int  `toml:"history_size"`
	PollIntervalMs int  `toml:"poll_interval_ms"`
}

// LoggingConfig controls the debug log
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Theme: ThemeConfig{
			Name:          "subtle",
			StatusBar:     "236",
			StatusBarText: "252",
			SearchMatch:   "226",
			FileBoundary:  "240",
			OffsetTime:    "109",
			AdjustedTime:  "139",
			SkewedTime:    "214",
			AltRow:        "246",
			AccelUp:       "108",
			AccelDown:     "167",
			IdentPalette: []string{
				"110", "114", "139", "143", "167", "173", "109", "179",
			},
			Levels: LogLevelColors{
				Trace:    "240",
				Debug:    "244",
				Info:     "250",
				Stats:    "109",
				Notice:   "146",
				Warn:     "214",
				Error:    "167",
				Critical: "161",
				Fatal:    "196",
			},
		},
		LogLevels: LogLevelConfig{
			TracePatterns:    []string{"[TRC]", "[TRACE]", "TRACE", "TRC"},
			DebugPatterns:    []string{"[DBG]", "[DEBUG]", "DEBUG", "DBG"},
			InfoPatterns:     []string{"[INF]", "[INFO]", "INFO", "INF"},
			StatsPatterns:    []string{"[STATS]", "STATS"},
			NoticePatterns:   []string{"[NOTICE]", "NOTICE"},
			WarnPatterns:     []string{"[WRN]", "[WARN]", "[WARNING]", "WARN", "WRN", "WARNING"},
			ErrorPatterns:    []string{"[ERR]", "[ERROR]", "ERROR", "ERR"},
			CriticalPatterns: []string{"[CRIT]", "CRITICAL"},
			FatalPatterns:    []string{"[FTL]", "[FATAL]", "FATAL", "FTL"},
		},
		Display: DisplayConfig{
			ShowFilename:   false,
			ShowBasename:   true,
			ShowTimeOffset: false,
			TabWidth:       4,
			HistorySize:    100,
			PollIntervalMs: 250,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = getConfigPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := getConfigPath()
	if configPath == "" {
		return nil
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mview", "config.toml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "mview", "config.toml")
}

// GetConfigPath exports the config path for user reference
func GetConfigPath() string {
	return getConfigPath()
}
