package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sink types accepted by sink.type.
const (
	SinkKafka      = "kafka"
	SinkClickHouse = "clickhouse"
	SinkBoth       = "both"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"20" validate:"gte=0"`
			Burst int     `yaml:"burst" default:"40" validate:"gte=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level          string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format         string        `yaml:"format" default:"console" validate:"oneof=json console"`
		Output         string        `yaml:"output" default:"stdout"`
		CollectorTopic string        `yaml:"collector_topic"`
		FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
		FlushThreshold int           `yaml:"flush_threshold" default:"100" validate:"gte=1"`
	} `yaml:"logging"`
	Scoring struct {
		ConfigPath string `yaml:"config_path" default:"config/scoring.yaml" validate:"required"`
	} `yaml:"scoring"`
	Scan struct {
		Interval time.Duration `yaml:"interval" default:"5m"`
		Timeout  time.Duration `yaml:"timeout" default:"2m"`
		Workers  int           `yaml:"workers" default:"8" validate:"gte=1,lte=256"`
		Symbols  []string      `yaml:"symbols" validate:"required,min=1,dive,required"`
		// Reference is the market-leading asset whose bars feed the
		// reference signal of every other symbol.
		Reference string `yaml:"reference" default:"BTCUSDT"`
		// SettlementWindow marks snapshots taken this close to a funding
		// settlement.
		SettlementWindow time.Duration `yaml:"settlement_window" default:"30m"`
		Lookback         struct {
			Bars1h  int `yaml:"bars_1h" default:"240" validate:"gte=2"`
			Bars4h  int `yaml:"bars_4h" default:"120" validate:"gte=0"`
			Bars15m int `yaml:"bars_15m" default:"96" validate:"gte=0"`
			Funding int `yaml:"funding" default:"30" validate:"gte=0"`
			OI      int `yaml:"open_interest" default:"48" validate:"gte=0"`
		} `yaml:"lookback"`
	} `yaml:"scan"`
	Sink struct {
		Type         string        `yaml:"type" default:"both" validate:"oneof=kafka clickhouse both"`
		BatchSize    int           `yaml:"batch_size" default:"50" validate:"gte=1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"2s"`
		BufferSize   int           `yaml:"buffer_size" default:"1000" validate:"gte=1"`
		MaxRPS       int           `yaml:"max_rps" default:"50" validate:"gte=0"`
		PublishAll   bool          `yaml:"publish_all" default:"true"`
	} `yaml:"sink"`
	Breaker struct {
		MaxFailures uint32        `yaml:"max_failures" default:"5" validate:"gte=1"`
		OpenTimeout time.Duration `yaml:"open_timeout" default:"30s"`
		Interval    time.Duration `yaml:"interval" default:"1m"`
	} `yaml:"breaker"`
	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		DecisionsTopic string   `yaml:"decisions_topic" default:"cryptosignal.decisions"`
		OutcomesTopic  string   `yaml:"outcomes_topic" default:"cryptosignal.outcomes"`
		RequiredAcks   int      `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
		Compression    string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled" default:"true"`
			GroupID    string        `yaml:"group_id" default:"cryptosignal-outcomes"`
			Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"256" validate:"gte=1"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost" validate:"required"`
		Port             int           `yaml:"port" default:"9000" validate:"gt=0,lt=65536"`
		Database         string        `yaml:"database" default:"cryptosignal" validate:"required"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Addr        string        `yaml:"addr" default:"localhost:6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		DecisionTTL time.Duration `yaml:"decision_ttl" default:"15m"`
	} `yaml:"redis"`
	Calibration struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		RefreshInterval time.Duration `yaml:"refresh_interval" default:"1h"`
		Lookback        time.Duration `yaml:"lookback" default:"720h"`
		MaxSamples      int           `yaml:"max_samples" default:"50000" validate:"gte=1"`
	} `yaml:"calibration"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Unset keys take their
// default tags.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates an in-memory configuration.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected keys from the environment. getenv is
// os.Getenv outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Scan.Symbols = splitList(v)
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("SCORING_CONFIG"); v != "" {
		c.Scoring.ConfigPath = v
	}
}

// Validate checks tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	var errs []error
	if c.UsesKafka() && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, fmt.Errorf("kafka.brokers cannot be empty when sink.type is %q", c.Sink.Type))
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers cannot be empty when the outcome consumer is enabled"))
	}
	if c.Scan.Interval <= 0 {
		errs = append(errs, errors.New("scan.interval must be positive"))
	}
	if c.Calibration.Enabled && c.Calibration.RefreshInterval <= 0 {
		errs = append(errs, errors.New("calibration.refresh_interval must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	return errors.Join(errs...)
}

// UsesKafka reports whether decisions are published to Kafka.
func (c *Config) UsesKafka() bool {
	return c.Sink.Type == SinkKafka || c.Sink.Type == SinkBoth
}

// UsesClickHouse reports whether decisions are stored in ClickHouse.
func (c *Config) UsesClickHouse() bool {
	return c.Sink.Type == SinkClickHouse || c.Sink.Type == SinkBoth
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
