package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Processor Processor `yaml:"processor"`
	Reaper    Reaper    `yaml:"reaper"`
	Client    Client    `yaml:"client"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	LogLevel      string `yaml:"logLevel"`  // debug, info, warn, error
	LogFormat     string `yaml:"logFormat"` // json, text
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Processor struct {
	BaseURL      string   `yaml:"baseURL"`
	DispatchPath string   `yaml:"dispatchPath"`
	Timeout      Duration `yaml:"timeout"`
	UserAgent    string   `yaml:"userAgent"`
	Mock         bool     `yaml:"mock"`
}

type Reaper struct {
	Interval   Duration `yaml:"interval"`
	StaleAfter Duration `yaml:"staleAfter"` // 0 disables the reaper
}

type Client struct {
	ServerURL    string   `yaml:"serverURL"`
	PollInterval Duration `yaml:"pollInterval"`
}

// Duration reads "30s" style strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func defaults() Config {
	return Config{
		Server: Server{
			Listen:    ":8000",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Processor: Processor{
			UserAgent: "agentdesk",
		},
		Reaper: Reaper{
			Interval: Duration(time.Minute),
		},
		Client: Client{
			ServerURL:    "http://localhost:8000",
			PollInterval: Duration(30 * time.Second),
		},
	}
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func overrideBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func applyEnv(config *Config) {
	overrideString(&config.Server.Listen, "AGENTDESK_LISTEN")
	overrideString(&config.Server.PostgresDsn, "AGENTDESK_POSTGRES_DSN")
	overrideString(&config.Server.RedisAddr, "AGENTDESK_REDIS_ADDR")
	overrideString(&config.Server.MemcachedAddr, "AGENTDESK_MEMCACHED_ADDR")
	overrideString(&config.Server.LogLevel, "AGENTDESK_LOG_LEVEL")
	overrideString(&config.Processor.BaseURL, "AGENTDESK_PROCESSOR_URL")
	overrideBool(&config.Processor.Mock, "AGENTDESK_PROCESSOR_MOCK")
}

// Validate checks settings shared by every subcommand.
func (c Config) Validate() error {
	if c.Server.EnableTrace && c.Server.TraceEndpoint == "" {
		return fmt.Errorf("server.traceEndpoint is required when tracing is enabled")
	}
	if c.Reaper.StaleAfter < 0 || c.Reaper.Interval < 0 {
		return fmt.Errorf("reaper durations must not be negative")
	}
	return nil
}

// ValidateServe checks the settings only the server needs.
func (c Config) ValidateServe() error {
	if c.Server.PostgresDsn == "" {
		return fmt.Errorf("server.postgresDsn is required")
	}
	if c.Processor.BaseURL == "" {
		return fmt.Errorf("processor.baseURL is required")
	}
	return nil
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	config := defaults()
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}
