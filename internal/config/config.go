package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeStream Mode = "stream"
	ModePaper  Mode = "paper"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config is the relay client configuration. Values are layered: struct
// defaults, then the YAML file named by --config, then .env, then the
// environment, then command-line flags.
type Config struct {
	Mode   Mode   `yaml:"mode" default:"stream" validate:"oneof=stream paper"`
	Symbol string `yaml:"symbol"`
	Feed   string `yaml:"feed"`

	ServiceURL  string        `yaml:"service_url" default:"http://127.0.0.1:8000/decide" validate:"required,url"`
	MaxPosition int           `yaml:"max_position" default:"2" validate:"min=1,max=100"`
	HTTPTimeout time.Duration `yaml:"http_timeout" default:"1s" validate:"min=100ms,max=10s"`
	ShowVWAP    bool          `yaml:"show_vwap" default:"true"`

	TickSize        float64       `yaml:"tick_size" default:"0.01" validate:"gt=0"`
	SessionTimezone string        `yaml:"session_timezone" default:"America/New_York" validate:"required"`
	SessionRollover time.Duration `yaml:"session_rollover" default:"0s"`

	KillSwitch    bool   `yaml:"kill_switch"`
	ExtendedHours bool   `yaml:"extended_hours"`
	TimeInForce   string `yaml:"time_in_force" default:"day" validate:"oneof=day gtc ioc"`

	DecisionsPath     string   `yaml:"decisions_path" default:"decisions.ndjson" validate:"required"`
	CheckpointPath    string   `yaml:"checkpoint_path" default:"checkpoint.json"`
	CheckpointBackend string   `yaml:"checkpoint_backend" default:"file" validate:"oneof=file redis"`
	RedisAddr         string   `yaml:"redis_addr" validate:"required_if=CheckpointBackend redis"`
	KafkaBrokers      []string `yaml:"kafka_brokers"`
	KafkaTopic        string   `yaml:"kafka_topic" default:"vwaprelay.decisions"`

	MetricsAddr string `yaml:"metrics_addr" default:":9102"`
	LogLevel    string `yaml:"log_level" default:"info"`
	LogFormat   string `yaml:"log_format" default:"json" validate:"oneof=json console"`

	ReconcileInterval time.Duration `yaml:"reconcile_interval" default:"10s" validate:"gt=0"`
	PaperBaseURL      string        `yaml:"paper_base_url" default:"https://paper-api.alpaca.markets" validate:"url"`
	APIKey            string        `yaml:"-"`
	APISecret         string        `yaml:"-"`
}

// Load reads configuration for the process.
func Load() (Config, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("apply defaults: %w", err)
	}

	// First pass only discovers --config; unknown values are reported by the
	// second pass.
	configPath := os.Getenv("VWAPRELAY_CONFIG")
	probe := cfg
	if err := newFlagSet(&probe, &configPath).Parse(args); err != nil {
		return cfg, err
	}

	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := newFlagSet(&cfg, &configPath).Parse(args); err != nil {
		return cfg, err
	}

	applyModeDefaults(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newFlagSet(cfg *Config, configPath *string) *flag.FlagSet {
	set := flag.NewFlagSet("vwaprelay", flag.ContinueOnError)
	set.StringVar(configPath, "config", *configPath, "path to YAML config file")
	set.StringVar((*string)(&cfg.Mode), "mode", string(cfg.Mode), "run mode: stream or paper")
	set.StringVar(&cfg.Symbol, "symbol", cfg.Symbol, "trading symbol")
	set.StringVar(&cfg.Feed, "feed", cfg.Feed, "market data feed: iex, sip or test")
	set.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "decision service URL")
	set.IntVar(&cfg.MaxPosition, "max-position", cfg.MaxPosition, "max absolute position size")
	set.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "decision request timeout")
	set.BoolVar(&cfg.ShowVWAP, "show-vwap", cfg.ShowVWAP, "export and log the session VWAP")
	set.Float64Var(&cfg.TickSize, "tick-size", cfg.TickSize, "instrument tick size")
	set.StringVar(&cfg.SessionTimezone, "session-timezone", cfg.SessionTimezone, "timezone of the session calendar")
	set.DurationVar(&cfg.SessionRollover, "session-rollover", cfg.SessionRollover, "local time of day the session date advances")
	set.BoolVar(&cfg.KillSwitch, "kill-switch", cfg.KillSwitch, "if true, never open or add to positions")
	set.BoolVar(&cfg.ExtendedHours, "extended-hours", cfg.ExtendedHours, "allow extended hours (limit+day only)")
	set.StringVar(&cfg.TimeInForce, "time-in-force", cfg.TimeInForce, "time in force: day, gtc or ioc")
	set.StringVar(&cfg.DecisionsPath, "decisions-path", cfg.DecisionsPath, "path to decisions journal")
	set.StringVar(&cfg.CheckpointPath, "checkpoint-path", cfg.CheckpointPath, "checkpoint file path for the file backend")
	set.StringVar(&cfg.CheckpointBackend, "checkpoint-backend", cfg.CheckpointBackend, "checkpoint backend: file or redis")
	set.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for the redis checkpoint backend")
	set.Var((*csvFlag)(&cfg.KafkaBrokers), "kafka-brokers", "comma separated brokers for the journal topic")
	set.StringVar(&cfg.KafkaTopic, "kafka-topic", cfg.KafkaTopic, "journal topic")
	set.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus listen address, empty to disable")
	set.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	set.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or console")
	set.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "reconciliation interval")
	set.StringVar(&cfg.PaperBaseURL, "paper-base-url", cfg.PaperBaseURL, "paper trading base URL")
	return set
}

func applyModeDefaults(cfg *Config) {
	switch cfg.Mode {
	case ModeStream:
		if cfg.Symbol == "" {
			cfg.Symbol = "FAKEPACA"
		}
		if cfg.Feed == "" {
			cfg.Feed = "test"
		}
	case ModePaper:
		if cfg.Symbol == "" {
			cfg.Symbol = "AAPL"
		}
		if cfg.Feed == "" {
			cfg.Feed = "iex"
		}
	}
}

var structValidator = validator.New()

func validate(cfg Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Mode == ModePaper && (cfg.APIKey == "" || cfg.APISecret == "") {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required in paper mode")
	}
	if cfg.SessionRollover < 0 || cfg.SessionRollover >= 24*time.Hour {
		return fmt.Errorf("session-rollover must be within a day")
	}
	if cfg.ExtendedHours && cfg.TimeInForce != "day" {
		return fmt.Errorf("extended-hours requires time-in-force day")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return fmt.Errorf("kafka-topic is required when kafka-brokers is set")
	}
	if cfg.CheckpointBackend == BackendFile && cfg.CheckpointPath == "" {
		return fmt.Errorf("checkpoint-path is required for the file backend")
	}
	return nil
}

func loadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// loadDotEnv sets variables from path without overriding the environment.
func loadDotEnv(path string) error {
	return godotenv.Load(path)
}

func loadDotEnvIfPresent(path string) error {
	if err := loadDotEnv(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.APIKey = envOr("APCA_API_KEY_ID", cfg.APIKey)
	cfg.APISecret = envOr("APCA_API_SECRET_KEY", cfg.APISecret)
	cfg.Mode = Mode(envOr("VWAPRELAY_MODE", string(cfg.Mode)))
	cfg.Symbol = envOr("VWAPRELAY_SYMBOL", cfg.Symbol)
	cfg.ServiceURL = envOr("VWAPRELAY_SERVICE_URL", cfg.ServiceURL)
	cfg.RedisAddr = envOr("VWAPRELAY_REDIS_ADDR", cfg.RedisAddr)
	cfg.MetricsAddr = envOr("VWAPRELAY_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = envOr("VWAPRELAY_LOG_LEVEL", cfg.LogLevel)
	if v, ok := os.LookupEnv("VWAPRELAY_KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitCSV(v)
	}
	if v, ok := os.LookupEnv("VWAPRELAY_MAX_POSITION"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VWAPRELAY_MAX_POSITION: %w", err)
		}
		cfg.MaxPosition = n
	}
	if v, ok := os.LookupEnv("VWAPRELAY_HTTP_TIMEOUT"); ok {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("VWAPRELAY_HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	return nil
}

// parseTimeout accepts a Go duration or a bare number of milliseconds.
func parseTimeout(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type csvFlag []string

func (c *csvFlag) String() string {
	if c == nil {
		return ""
	}
	return strings.Join(*c, ",")
}

func (c *csvFlag) Set(v string) error {
	*c = splitCSV(v)
	return nil
}
