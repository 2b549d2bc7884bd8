package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Ledger LedgerConfig
	Triage TriageConfig
	Report ReportConfig
	Remote RemoteConfig
	Log    LogConfig
}

// LedgerConfig selects and locates the ledger store.
type LedgerConfig struct {
	Backend string // "file" or "sqlite"
	Path    string
	DBPath  string `mapstructure:"db_path"`
}

// TriageConfig holds queue policy settings.
type TriageConfig struct {
	HighValueThreshold int64  `mapstructure:"high_value_threshold"`
	StatePath          string `mapstructure:"state_path"`
}

// ReportConfig holds report defaults.
type ReportConfig struct {
	BonusMultiplier int64 `mapstructure:"bonus_multiplier"`
}

// RemoteConfig holds contribution host settings.
type RemoteConfig struct {
	Kind              string // "github" or "fixture"
	Owner             string
	Repo              string
	BaseURL           string `mapstructure:"base_url"`
	TokenEnv          string `mapstructure:"token_env"`
	Token             string
	FixturePath       string        `mapstructure:"fixture_path"`
	MergeStrategy     string        `mapstructure:"merge_strategy"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BountyLabelPrefix string        `mapstructure:"bounty_label_prefix"`
	BlockingLabel     string        `mapstructure:"blocking_label"`
	MaxRetries        uint          `mapstructure:"max_retries"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from file and env. Env var overrides use prefix BOUNTYLEDGER_.
// An explicit path takes precedence over BOUNTYLEDGER_CONFIG.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv("BOUNTYLEDGER_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "bountyledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("BOUNTYLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// a missing default file is fine; a missing explicit file is not
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.isolateFixture()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "bountyledger")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ledger.backend", "file")
	v.SetDefault("ledger.path", filepath.Join(dataDir(), "ledger.jsonl"))
	v.SetDefault("ledger.db_path", filepath.Join(dataDir(), "bountyledger.db"))
	v.SetDefault("triage.high_value_threshold", 500)
	v.SetDefault("triage.state_path", filepath.Join(dataDir(), "deferred.json"))
	v.SetDefault("report.bonus_multiplier", 2)
	v.SetDefault("remote.kind", "github")
	v.SetDefault("remote.owner", "")
	v.SetDefault("remote.repo", "")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.token_env", "GITHUB_TOKEN")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.fixture_path", "")
	v.SetDefault("remote.merge_strategy", "squash")
	v.SetDefault("remote.request_timeout", 30*time.Second)
	v.SetDefault("remote.requests_per_second", 5.0)
	v.SetDefault("remote.bounty_label_prefix", "bounty:")
	v.SetDefault("remote.blocking_label", "unblocks")
	v.SetDefault("remote.max_retries", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// isolateFixture keeps dry runs against the fixture host out of the real
// ledger. Paths left at their defaults move next to the fixture file.
func (c *Config) isolateFixture() {
	if c.Remote.Kind != "fixture" || c.Remote.FixturePath == "" {
		return
	}
	base := strings.TrimSuffix(c.Remote.FixturePath, filepath.Ext(c.Remote.FixturePath))
	if c.Ledger.Path == filepath.Join(dataDir(), "ledger.jsonl") {
		c.Ledger.Path = base + ".ledger.jsonl"
	}
	if c.Ledger.DBPath == filepath.Join(dataDir(), "bountyledger.db") {
		c.Ledger.DBPath = base + ".ledger.db"
	}
	if c.Triage.StatePath == filepath.Join(dataDir(), "deferred.json") {
		c.Triage.StatePath = base + ".deferred.json"
	}
}

// Validate rejects values the rest of the program cannot act on.
func (c Config) Validate() error {
	switch c.Ledger.Backend {
	case "file":
		if strings.TrimSpace(c.Ledger.Path) == "" {
			return fmt.Errorf("config: ledger.path is required for the file backend")
		}
	case "sqlite":
		if strings.TrimSpace(c.Ledger.DBPath) == "" {
			return fmt.Errorf("config: ledger.db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: unknown ledger.backend %q", c.Ledger.Backend)
	}
	if c.Triage.HighValueThreshold <= 0 {
		return fmt.Errorf("config: triage.high_value_threshold must be positive")
	}
	if c.Report.BonusMultiplier <= 0 {
		return fmt.Errorf("config: report.bonus_multiplier must be positive")
	}
	switch c.Remote.Kind {
	case "github":
	case "fixture":
		if strings.TrimSpace(c.Remote.FixturePath) == "" {
			return fmt.Errorf("config: remote.fixture_path is required for the fixture host")
		}
	default:
		return fmt.Errorf("config: unknown remote.kind %q", c.Remote.Kind)
	}
	switch c.Remote.MergeStrategy {
	case "squash", "merge", "rebase":
	default:
		return fmt.Errorf("config: unknown remote.merge_strategy %q", c.Remote.MergeStrategy)
	}
	if c.Remote.RequestTimeout <= 0 {
		return fmt.Errorf("config: remote.request_timeout must be positive")
	}
	return nil
}

// Default returns the built-in configuration, with no file or env applied.
func Default() (Config, error) {
	v := viper.New()
	setDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Path resolves where Save writes when given path: the explicit path,
// then BOUNTYLEDGER_CONFIG, then the default location Load searches.
func Path(path string) string {
	if path == "" {
		path = os.Getenv("BOUNTYLEDGER_CONFIG")
	}
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "bountyledger", "config.toml")
	}
	return path
}

// Save writes the provided config to disk, creating the config directory if needed.
// The token is stored in plain text; prefer the env var or `bountyledger token set`.
func Save(path string, cfg Config) error {
	path = Path(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("ledger.backend", cfg.Ledger.Backend)
	v.Set("ledger.path", cfg.Ledger.Path)
	v.Set("ledger.db_path", cfg.Ledger.DBPath)
	v.Set("triage.high_value_threshold", cfg.Triage.HighValueThreshold)
	v.Set("triage.state_path", cfg.Triage.StatePath)
	v.Set("report.bonus_multiplier", cfg.Report.BonusMultiplier)
	v.Set("remote.kind", cfg.Remote.Kind)
	v.Set("remote.owner", cfg.Remote.Owner)
	v.Set("remote.repo", cfg.Remote.Repo)
	v.Set("remote.base_url", cfg.Remote.BaseURL)
	v.Set("remote.token_env", cfg.Remote.TokenEnv)
	v.Set("remote.token", cfg.Remote.Token)
	v.Set("remote.fixture_path", cfg.Remote.FixturePath)
	v.Set("remote.merge_strategy", cfg.Remote.MergeStrategy)
	v.Set("remote.request_timeout", cfg.Remote.RequestTimeout.String())
	v.Set("remote.requests_per_second", cfg.Remote.RequestsPerSecond)
	v.Set("remote.bounty_label_prefix", cfg.Remote.BountyLabelPrefix)
	v.Set("remote.blocking_label", cfg.Remote.BlockingLabel)
	v.Set("remote.max_retries", cfg.Remote.MaxRetries)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
