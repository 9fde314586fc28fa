package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/DenDanskeSamler/scraperd/internal/env"
	"github.com/DenDanskeSamler/scraperd/internal/logger"
	"github.com/DenDanskeSamler/scraperd/internal/stage"
)

// Defaults mirror the original deployment: a two hour loop and a status file
// next to the daemon.
const (
	DefaultInterval   = 2 * time.Hour
	DefaultStatusFile = "scraper_status.json"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Interval   time.Duration  `toml:"interval" mapstructure:"interval"`
	StatusFile string         `toml:"status_file" mapstructure:"status_file"`
	Env        []string       `toml:"env" mapstructure:"env"`
	EnvFiles   []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv   bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Log        *LogConfig     `toml:"log" mapstructure:"log"`
	Metrics    *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Server     *ServerConfig  `toml:"server" mapstructure:"server"`
	History    *HistoryConfig `toml:"history" mapstructure:"history"`
	Stages     []StageConfig  `toml:"stages" mapstructure:"stages"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	File       string `toml:"file" mapstructure:"file"` // daemon log; empty = stderr
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	Level      string `toml:"level" mapstructure:"level"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type StageConfig struct {
	Name    string        `toml:"name" mapstructure:"name"`
	Command string        `toml:"command" mapstructure:"command"`
	WorkDir string        `toml:"workdir" mapstructure:"workdir"`
	Env     []string      `toml:"env" mapstructure:"env"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
	Log     *LogConfig    `toml:"log" mapstructure:"log"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type ServerConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// Config is the resolved configuration handed to the daemon.
type Config struct {
	Interval   time.Duration
	StatusFile string
	GlobalEnv  []string
	DaemonLog  logger.Config
	LogFile    string // daemon log path; empty = stderr
	LogLevel   string
	Stages     []stage.Spec
	Metrics    *MetricsConfig
	Server     *ServerConfig
	History    *HistoryConfig
}

// Load reads a TOML config file and resolves it into a Config. It applies
// defaults and validates the parts the daemon refuses to start without.
func Load(path string) (*Config, error) {
	fc, err := readFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Interval:   fc.Interval,
		StatusFile: fc.StatusFile,
		Metrics:    fc.Metrics,
		Server:     fc.Server,
		History:    fc.History,
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StatusFile == "" {
		cfg.StatusFile = DefaultStatusFile
	}

	cfg.GlobalEnv, err = env.Compose(fc.UseOSEnv, fc.EnvFiles, fc.Env)
	if err != nil {
		return nil, err
	}

	if fc.Log != nil {
		cfg.DaemonLog = toLoggerConfig(*fc.Log)
		cfg.LogFile = fc.Log.File
		cfg.LogLevel = fc.Log.Level
	}

	cfg.Stages, err = resolveStages(fc)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate enforces the startup invariants. A daemon with no stages has
// nothing to run and must refuse to start.
func (c *Config) Validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("no stages configured")
	}
	seen := make(map[string]struct{}, len(c.Stages))
	for i := range c.Stages {
		s := &c.Stages[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	return nil
}

func readFile(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func resolveStages(fc *FileConfig) ([]stage.Spec, error) {
	specs := make([]stage.Spec, 0, len(fc.Stages))
	for _, sc := range fc.Stages {
		// logging config: start with top-level defaults then override per stage
		var logCfg logger.Config
		if fc.Log != nil {
			logCfg = toLoggerConfig(*fc.Log)
		}
		if sc.Log != nil {
			overlayLog(&logCfg, *sc.Log)
		}
		specs = append(specs, stage.Spec{
			Name:    sc.Name,
			Command: sc.Command,
			WorkDir: sc.WorkDir,
			Env:     sc.Env,
			Timeout: sc.Timeout,
			Log:     logCfg,
		})
	}
	return specs, nil
}

func toLoggerConfig(lc LogConfig) logger.Config {
	return logger.Config{
		Dir:        lc.Dir,
		StdoutPath: lc.Stdout,
		StderrPath: lc.Stderr,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}

func overlayLog(dst *logger.Config, lc LogConfig) {
	if lc.Dir != "" {
		dst.Dir = lc.Dir
	}
	if lc.Stdout != "" {
		dst.StdoutPath = lc.Stdout
	}
	if lc.Stderr != "" {
		dst.StderrPath = lc.Stderr
	}
	if lc.MaxSizeMB != 0 {
		dst.MaxSizeMB = lc.MaxSizeMB
	}
	if lc.MaxBackups != 0 {
		dst.MaxBackups = lc.MaxBackups
	}
	if lc.MaxAgeDays != 0 {
		dst.MaxAgeDays = lc.MaxAgeDays
	}
	if lc.Compress {
		dst.Compress = true
	}
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	vars, err := env.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return vars.List(), nil
}
