// Package config loads configuration from an optional config.yaml and
// WORKWISE_* environment variables, and validates it at startup.
// Fail-fast: a session never starts on a nonsensical configuration.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// Built-in task names.
const (
	TaskGumtree = "gumtree"
	TaskAdzuna  = "adzuna"
	TaskManual  = "manual"
)

const redactedValue = "****"

// Config holds all runtime configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store" json:"store"`
	Redis    RedisConfig    `mapstructure:"redis" json:"redis"`
	Tasks    TasksConfig    `mapstructure:"tasks" json:"tasks"`
	Pipeline PipelineConfig `mapstructure:"pipeline" json:"pipeline"`
	Ingest   IngestConfig   `mapstructure:"ingest" json:"ingest"`
	Sources  SourcesConfig  `mapstructure:"sources" json:"sources"`
	Report   ReportConfig   `mapstructure:"report" json:"report"`
	Schedule ScheduleConfig `mapstructure:"schedule" json:"schedule"`
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
	// DryRun swaps the configured store for an in-memory SQLite database
	// and skips the remote ingestion endpoint.
	DryRun bool `mapstructure:"dry_run" json:"dry_run"`
}

// StoreConfig configures the primary store. URL is a postgres:// URL or a
// SQLite path.
type StoreConfig struct {
	URL      string `mapstructure:"url" json:"url"`
	MaxConns int32  `mapstructure:"max_conns" json:"max_conns"`
	MinConns int32  `mapstructure:"min_conns" json:"min_conns"`
}

// RedisConfig is optional; without a URL the session uses an in-memory
// seen-set and publishes no events.
type RedisConfig struct {
	URL           string        `mapstructure:"url" json:"url"`
	DedupTTL      time.Duration `mapstructure:"dedup_ttl" json:"dedup_ttl"`
	PublishEvents bool          `mapstructure:"publish_events" json:"publish_events"`
}

// TasksConfig controls which tasks run and how.
type TasksConfig struct {
	Enabled       []string                 `mapstructure:"enabled" json:"enabled"`
	MaxConcurrent int                      `mapstructure:"max_concurrent" json:"max_concurrent"`
	Timeout       time.Duration            `mapstructure:"timeout" json:"timeout"`
	MaxItems      int                      `mapstructure:"max_items" json:"max_items"`
	Commands      map[string]CommandConfig `mapstructure:"commands" json:"commands,omitempty"`
}

// CommandConfig describes an external command task.
type CommandConfig struct {
	Path string   `mapstructure:"path" json:"path"`
	Args []string `mapstructure:"args" json:"args,omitempty"`
	Dir  string   `mapstructure:"dir" json:"dir,omitempty"`
}

// PipelineConfig configures the item pipeline.
type PipelineConfig struct {
	// ValidationLevel gates what the pipeline drops; lenient by default.
	ValidationLevel string `mapstructure:"validation_level" json:"validation_level"`
	Classify        bool   `mapstructure:"classify" json:"classify"`
	// UpdateMetrics refreshes company hiring metrics after each session.
	UpdateMetrics bool `mapstructure:"update_metrics" json:"update_metrics"`
}

// IngestConfig configures the remote ingestion client. An empty URL
// disables forwarding.
type IngestConfig struct {
	URL               string        `mapstructure:"url" json:"url"`
	APIKey            string        `mapstructure:"api_key" json:"api_key"`
	BatchSize         int           `mapstructure:"batch_size" json:"batch_size"`
	MaxRetries        int           `mapstructure:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" json:"retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" json:"backoff_multiplier"`
	Timeout           time.Duration `mapstructure:"timeout" json:"timeout"`
	// ValidationLevel gates which stored jobs are forwarded; moderate by
	// default.
	ValidationLevel   string        `mapstructure:"validation_level" json:"validation_level"`
}

// SourcesConfig configures the built-in collectors.
type SourcesConfig struct {
	Adzuna         AdzunaConfig  `mapstructure:"adzuna" json:"adzuna"`
	Gumtree        GumtreeConfig `mapstructure:"gumtree" json:"gumtree"`
	ManualJobsFile string        `mapstructure:"manual_jobs_file" json:"manual_jobs_file"`
}

type AdzunaConfig struct {
	AppID     string        `mapstructure:"app_id" json:"app_id"`
	AppKey    string        `mapstructure:"app_key" json:"app_key"`
	Country   string        `mapstructure:"country" json:"country"`
	Titles    []string      `mapstructure:"titles" json:"titles"`
	Locations []string      `mapstructure:"locations" json:"locations"`
	MaxPages  int           `mapstructure:"max_pages" json:"max_pages"`
	Interval  time.Duration `mapstructure:"interval" json:"interval"`
}

type GumtreeConfig struct {
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	StartPaths  []string      `mapstructure:"start_paths" json:"start_paths,omitempty"`
	MaxPages    int           `mapstructure:"max_pages" json:"max_pages"`
	MaxListings int           `mapstructure:"max_listings" json:"max_listings"`
	Interval    time.Duration `mapstructure:"interval" json:"interval"`
}

type ReportConfig struct {
	Dir string `mapstructure:"dir" json:"dir"`
}

// ScheduleConfig drives serve mode.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron" json:"cron"`
	RunOnStart bool   `mapstructure:"run_on_start" json:"run_on_start"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" json:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Load reads config.yaml from the working directory, or path when given,
// applies WORKWISE_* overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WORKWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys without a useful default are still registered so that
	// AutomaticEnv picks them up on Unmarshal.
	for _, key := range []string{
		"redis.url", "ingest.url", "ingest.api_key",
		"sources.adzuna.app_id", "sources.adzuna.app_key",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("dry_run", false)
	v.SetDefault("store.url", "workwise.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("redis.dedup_ttl", 24*time.Hour)
	v.SetDefault("redis.publish_events", true)
	v.SetDefault("tasks.enabled", []string{TaskGumtree})
	v.SetDefault("tasks.max_concurrent", 2)
	v.SetDefault("tasks.timeout", time.Hour)
	v.SetDefault("tasks.max_items", 0)
	v.SetDefault("pipeline.validation_level", string(model.ValidationLenient))
	v.SetDefault("pipeline.classify", true)
	v.SetDefault("pipeline.update_metrics", true)
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.retry_delay", time.Second)
	v.SetDefault("ingest.backoff_multiplier", 2.0)
	v.SetDefault("ingest.timeout", 30*time.Second)
	v.SetDefault("ingest.validation_level", string(model.ValidationModerate))
	v.SetDefault("sources.adzuna.country", "za")
	v.SetDefault("sources.adzuna.titles", []string{"cashier", "general worker", "security guard", "cleaner"})
	v.SetDefault("sources.adzuna.max_pages", 3)
	v.SetDefault("sources.adzuna.interval", time.Second)
	v.SetDefault("sources.gumtree.base_url", "https://www.gumtree.co.za")
	v.SetDefault("sources.gumtree.max_pages", 3)
	v.SetDefault("sources.gumtree.interval", 2*time.Second)
	v.SetDefault("sources.manual_jobs_file", "manual_jobs.json")
	v.SetDefault("report.dir", "reports")
	v.SetDefault("schedule.cron", "@every 6h")
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("server.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects values no session can run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if c.Store.URL == "" && !c.DryRun {
		add("store.url is required")
	}
	if c.Tasks.MaxConcurrent < 1 {
		add("tasks.max_concurrent must be at least 1, got %d", c.Tasks.MaxConcurrent)
	}
	if c.Tasks.Timeout <= 0 {
		add("tasks.timeout must be positive, got %s", c.Tasks.Timeout)
	}
	if c.Tasks.MaxItems < 0 {
		add("tasks.max_items must not be negative, got %d", c.Tasks.MaxItems)
	}
	if len(c.Tasks.Enabled) == 0 {
		add("tasks.enabled must name at least one task")
	}
	known := c.TaskNames()
	for _, name := range c.Tasks.Enabled {
		if !slices.Contains(known, name) {
			add("tasks.enabled: unknown task %q (known: %s)", name, strings.Join(known, ", "))
		}
	}
	for name, cmd := range c.Tasks.Commands {
		if cmd.Path == "" {
			add("tasks.commands.%s.path is required", name)
		}
	}
	if _, err := model.ParseValidationLevel(c.Pipeline.ValidationLevel); err != nil {
		add("pipeline.validation_level: %v", err)
	}
	if _, err := model.ParseValidationLevel(c.Ingest.ValidationLevel); err != nil {
		add("ingest.validation_level: %v", err)
	}
	if c.Ingest.URL != "" {
		if u, err := url.Parse(c.Ingest.URL); err != nil || u.Scheme == "" || u.Host == "" {
			add("ingest.url must be an absolute URL, got %q", c.Ingest.URL)
		}
	}
	if c.Ingest.BatchSize < 1 || c.Ingest.BatchSize > 1000 {
		add("ingest.batch_size must be between 1 and 1000, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.MaxRetries < 0 {
		add("ingest.max_retries must not be negative, got %d", c.Ingest.MaxRetries)
	}
	if c.Ingest.RetryDelay < 0 {
		add("ingest.retry_delay must not be negative, got %s", c.Ingest.RetryDelay)
	}
	if c.Ingest.BackoffMultiplier < 1 {
		add("ingest.backoff_multiplier must be at least 1.0, got %g", c.Ingest.BackoffMultiplier)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format must be json or console, got %q", c.Log.Format)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// TaskNames lists every task that can be enabled: the built-in collectors
// plus the configured commands, sorted.
func (c *Config) TaskNames() []string {
	names := []string{TaskAdzuna, TaskGumtree, TaskManual}
	for name := range c.Tasks.Commands {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Level returns the pipeline validation level. Unset means lenient.
func (c *Config) Level() model.ValidationLevel {
	if strings.TrimSpace(c.Pipeline.ValidationLevel) == "" {
		return model.ValidationLenient
	}
	lvl, _ := model.ParseValidationLevel(c.Pipeline.ValidationLevel)
	return lvl
}

// IngestLevel returns the validation level applied before forwarding.
// Unset means moderate.
func (c *Config) IngestLevel() model.ValidationLevel {
	lvl, _ := model.ParseValidationLevel(c.Ingest.ValidationLevel)
	return lvl
}

// Redacted returns a copy safe to write into reports: API keys are masked
// and URL credentials removed.
func (c Config) Redacted() Config {
	if c.Ingest.APIKey != "" {
		c.Ingest.APIKey = redactedValue
	}
	if c.Sources.Adzuna.AppKey != "" {
		c.Sources.Adzuna.AppKey = redactedValue
	}
	c.Store.URL = redactURL(c.Store.URL)
	c.Redis.URL = redactURL(c.Redis.URL)
	c.Tasks.Commands = cloneCommands(c.Tasks.Commands)
	c.Tasks.Enabled = slices.Clone(c.Tasks.Enabled)
	return c
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), redactedValue)
	}
	return u.String()
}

func cloneCommands(in map[string]CommandConfig) map[string]CommandConfig {
	if in == nil {
		return nil
	}
	out := make(map[string]CommandConfig, len(in))
	for k, v := range in {
		v.Args = slices.Clone(v.Args)
		out[k] = v
	}
	return out
}

// InitLogger builds the process logger and installs it globally.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
