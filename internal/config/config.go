// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Extraction modes.
const (
	ModeStatic      = "static"
	ModeInteractive = "interactive"
	ModeAuto        = "auto"
)

// Output formats.
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatBoth     = "both"
)

// Converter engines.
const (
	EngineNative     = "native"
	EngineCommonMark = "commonmark"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Network     NetworkConfig     `mapstructure:"network" yaml:"network"`
	Interaction InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	Export      ExportConfig      `mapstructure:"export" yaml:"export"`
	Selectors   SelectorsConfig   `mapstructure:"selectors" yaml:"selectors"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	RemoteURL       string   `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir     string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	WindowWidth     int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int      `mapstructure:"window_height" yaml:"window_height"`
	Args            []string `mapstructure:"args" yaml:"args"`
	Debug           bool     `mapstructure:"debug" yaml:"debug"`
}

// NetworkConfig tunes navigation and per-action timeouts.
type NetworkConfig struct {
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait       time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	MessageWaitTimeout time.Duration `mapstructure:"message_wait_timeout" yaml:"message_wait_timeout"`
}

// InteractionConfig holds the fixed delays used by the interactive extractor.
// The page gives no completion signal for any of these steps, so every wait
// is a plain timer.
type InteractionConfig struct {
	HoverDelay  time.Duration `mapstructure:"hover_delay" yaml:"hover_delay"`
	EditDelay   time.Duration `mapstructure:"edit_delay" yaml:"edit_delay"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	CopyDelay   time.Duration `mapstructure:"copy_delay" yaml:"copy_delay"`
	CaptureWait time.Duration `mapstructure:"capture_wait" yaml:"capture_wait"`
}

// ExportConfig controls what one export run produces.
type ExportConfig struct {
	Mode         string `mapstructure:"mode" yaml:"mode"`
	OutputDir    string `mapstructure:"output_dir" yaml:"output_dir"`
	FileName     string `mapstructure:"file_name" yaml:"file_name"`
	Format       string `mapstructure:"format" yaml:"format"`
	Engine       string `mapstructure:"engine" yaml:"engine"`
	Profile      string `mapstructure:"profile" yaml:"profile"`
	DefaultTitle string `mapstructure:"default_title" yaml:"default_title"`
	Preview      bool   `mapstructure:"preview" yaml:"preview"`
}

// SelectorsConfig carries user supplied selector profiles. Entries whose name
// matches a built-in profile override its non-empty fields; the rest are added.
type SelectorsConfig struct {
	Profiles []ProfileConfig `mapstructure:"profiles" yaml:"profiles"`
}

// ProfileConfig is the configuration form of a selector profile.
type ProfileConfig struct {
	Name                     string   `mapstructure:"name" yaml:"name"`
	MessageSelector          string   `mapstructure:"message_selector" yaml:"message_selector"`
	HumanSelector            string   `mapstructure:"human_selector" yaml:"human_selector"`
	AssistantSelector        string   `mapstructure:"assistant_selector" yaml:"assistant_selector"`
	AssistantContentSelector string   `mapstructure:"assistant_content_selector" yaml:"assistant_content_selector"`
	TitleSelector            string   `mapstructure:"title_selector" yaml:"title_selector"`
	EditButtonTexts          []string `mapstructure:"edit_button_texts" yaml:"edit_button_texts"`
	CopyButtonTexts          []string `mapstructure:"copy_button_texts" yaml:"copy_button_texts"`
	EditInputSelector        string   `mapstructure:"edit_input_selector" yaml:"edit_input_selector"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chatscribe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.debug", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "2s")
	v.SetDefault("network.action_timeout", "15s")
	v.SetDefault("network.message_wait_timeout", "30s")

	// -- Interaction --
	v.SetDefault("interaction.hover_delay", "200ms")
	v.SetDefault("interaction.edit_delay", "500ms")
	v.SetDefault("interaction.settle_delay", "300ms")
	v.SetDefault("interaction.copy_delay", "300ms")
	v.SetDefault("interaction.capture_wait", "2s")

	// -- Export --
	v.SetDefault("export.mode", ModeAuto)
	v.SetDefault("export.output_dir", ".")
	v.SetDefault("export.file_name", "")
	v.SetDefault("export.format", FormatMarkdown)
	v.SetDefault("export.engine", EngineNative)
	v.SetDefault("export.profile", "")
	v.SetDefault("export.default_title", "Conversation with Claude")
	v.SetDefault("export.preview", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir, err := homedir.Expand(cfg.Export.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("error expanding export.output_dir: %w", err)
	}
	cfg.Export.OutputDir = dir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Export.Mode {
	case ModeStatic, ModeInteractive, ModeAuto:
	default:
		return fmt.Errorf("export.mode must be one of static, interactive, auto (got %q)", c.Export.Mode)
	}
	switch c.Export.Format {
	case FormatMarkdown, FormatJSON, FormatBoth:
	default:
		return fmt.Errorf("export.format must be one of md, json, both (got %q)", c.Export.Format)
	}
	switch c.Export.Engine {
	case EngineNative, EngineCommonMark:
	default:
		return fmt.Errorf("export.engine must be one of native, commonmark (got %q)", c.Export.Engine)
	}
	if strings.TrimSpace(c.Export.OutputDir) == "" {
		return fmt.Errorf("export.output_dir must not be empty")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Network.ActionTimeout <= 0 {
		return fmt.Errorf("network.action_timeout must be a positive duration")
	}
	if err := c.Interaction.Validate(); err != nil {
		return fmt.Errorf("interaction configuration invalid: %w", err)
	}
	for i, p := range c.Selectors.Profiles {
		if p.Name == "" {
			return fmt.Errorf("selectors.profiles[%d].name is required", i)
		}
	}
	return nil
}

// Validate checks the interaction delays. Zero is allowed (no wait), negative is not.
func (i *InteractionConfig) Validate() error {
	delays := map[string]time.Duration{
		"hover_delay":  i.HoverDelay,
		"edit_delay":   i.EditDelay,
		"settle_delay": i.SettleDelay,
		"copy_delay":   i.CopyDelay,
		"capture_wait": i.CaptureWait,
	}
	for name, d := range delays {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}
