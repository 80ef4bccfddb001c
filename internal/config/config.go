package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration loaded from filmatlas.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Database      DatabaseConfig      `mapstructure:"database"`
	TMDB          TMDBConfig          `mapstructure:"tmdb"`
	AI            AIConfig            `mapstructure:"ai"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Safety        SafetyConfig        `mapstructure:"safety"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	FeatureFlags  FeatureFlagsConfig  `mapstructure:"feature_flags"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN builds a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type TMDBConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
}

type AIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// SafetyConfig carries the output-validation knobs. The similarity
// thresholds default to the values the heuristics were shipped with;
// they have no derivation from a corpus yet and should be recalibrated
// before tightening warnings into errors.
type SafetyConfig struct {
	MinDescriptionLength int     `mapstructure:"min_description_length"`
	MaxDescriptionLength int     `mapstructure:"max_description_length"`
	MinSimilarity        float64 `mapstructure:"min_similarity"`
	MaxSimilarity        float64 `mapstructure:"max_similarity"`
	MaxSlugLength        int     `mapstructure:"max_slug_length"`
	MaxTextLength        int     `mapstructure:"max_text_length"`
}

type RetrievalConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	SlotTTL      time.Duration `mapstructure:"slot_ttl"`
	JobStatusTTL time.Duration `mapstructure:"job_status_ttl"`
}

type FeatureFlagsConfig struct {
	Path string `mapstructure:"path"`
}

type ObservabilityConfig struct {
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
	Tracing struct {
		Enabled      bool   `mapstructure:"enabled"`
		ServiceName  string `mapstructure:"service_name"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`
}

// Load reads configuration from CONFIG_PATH or ./config/filmatlas.yaml.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/filmatlas.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	setDefaults(v)
	// Secrets come from the environment, not the config file.
	v.BindEnv("tmdb.api_key", "TMDB_API_KEY")
	v.BindEnv("ai.api_key", "OPENAI_API_KEY")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.timeout", 5*time.Second)
	v.SetDefault("tmdb.requests_per_sec", 4.0)
	v.SetDefault("tmdb.burst", 8)
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_tokens", 700)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "filmatlas-generation")
	v.SetDefault("safety.min_description_length", 50)
	v.SetDefault("safety.max_description_length", 5000)
	v.SetDefault("safety.min_similarity", 0.3)
	v.SetDefault("safety.max_similarity", 0.95)
	v.SetDefault("safety.max_slug_length", 255)
	v.SetDefault("safety.max_text_length", 10000)
	v.SetDefault("retrieval.cache_ttl", time.Hour)
	v.SetDefault("retrieval.slot_ttl", 10*time.Minute)
	v.SetDefault("retrieval.job_status_ttl", 15*time.Minute)
	v.SetDefault("feature_flags.path", "config/features.yaml")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.tracing.service_name", "filmatlas")
}
