package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the collector.
type Config struct {
	Host        string        `yaml:"host" validate:"omitempty,hostname|ip"`
	Port        int           `yaml:"port" validate:"min=0,max=65535"`
	Backlog     int           `yaml:"backlog" validate:"min=1"`
	ReadTimeout time.Duration `yaml:"readTimeout" validate:"gt=0"`
	BufferSize  int           `yaml:"bufferSize" validate:"min=64,max=1048576"`
	GroupSize   int           `yaml:"groupSize" validate:"min=1"`
	LogDir      string        `yaml:"logDir" validate:"required"`
	LogLevel    string        `yaml:"logLevel" validate:"oneof=debug info warn error"`

	HTTPEnabled        bool     `yaml:"httpEnabled"`
	HTTPAddr           string   `yaml:"httpAddr" validate:"required_if=HTTPEnabled true"`
	AllowedOrigins     []string `yaml:"allowedOrigins" validate:"dive,url"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute" validate:"min=1"`
	RateLimitBurst     int      `yaml:"rateLimitBurst" validate:"min=1"`

	MongoURI      string `yaml:"mongoURI" validate:"omitempty,uri"`
	MongoDatabase string `yaml:"mongoDatabase" validate:"required"`
	RedisURL      string `yaml:"redisURL" validate:"omitempty,uri"`
	SummaryTopic  string `yaml:"summaryTopic" validate:"required"`
	SinkQueueSize int    `yaml:"sinkQueueSize" validate:"min=1"`
}

func Default() *Config {
	return &Config{
		Port:               7879,
		Backlog:            20,
		ReadTimeout:        60 * time.Second,
		BufferSize:         1024,
		GroupSize:          5,
		LogDir:             ".",
		LogLevel:           "info",
		HTTPEnabled:        true,
		HTTPAddr:           ":8080",
		AllowedOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		RateLimitPerMinute: 6000,
		RateLimitBurst:     10,
		MongoDatabase:      "hybrid_chain_logger",
		SummaryTopic:       "group-statistics",
		SinkQueueSize:      256,
	}
}

// ListenAddr is the TCP address log clients connect to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE, a .env file and the process environment, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("LOGGER_HOST", &c.Host)
	num("LOGGER_PORT", &c.Port)
	num("LOGGER_BACKLOG", &c.Backlog)
	num("LOGGER_BUFFER_SIZE", &c.BufferSize)
	num("GROUP_SIZE", &c.GroupSize)
	str("LOG_DIR", &c.LogDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("HTTP_ADDR", &c.HTTPAddr)
	num("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	num("RATE_LIMIT_BURST", &c.RateLimitBurst)
	str("MONGODB_URI", &c.MongoURI)
	str("MONGODB_DATABASE", &c.MongoDatabase)
	str("REDIS_URL", &c.RedisURL)
	str("SUMMARY_TOPIC", &c.SummaryTopic)
	num("SINK_QUEUE_SIZE", &c.SinkQueueSize)

	if v, ok := lookup("LOGGER_READ_TIMEOUT"); ok {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOGGER_READ_TIMEOUT: %w", err))
		} else {
			c.ReadTimeout = d
		}
	}
	if v, ok := lookup("HTTP_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("HTTP_ENABLED: %w", err))
		} else {
			c.HTTPEnabled = b
		}
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s") or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks field constraints and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
