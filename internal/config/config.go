package config

import (
	"fmt"
	"os"
	"time"

	"crew_assessment_backend/internal/model"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Speech     SpeechConfig     `mapstructure:"speech"`
	Assessment AssessmentConfig `mapstructure:"assessment"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`

	// Runtime flags, set from the command line rather than the file.
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type StorageConfig struct {
	Type          string `mapstructure:"type"` // local | minio
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

// SpeechConfig describes the external speech-analysis provider. Every call
// carries TimeoutSeconds and is retried up to MaxRetries times with
// doubling backoff before the deterministic fallback score applies.
type SpeechConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

func (c SpeechConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ModulePlan is the per-module draw count and score cap.
type ModulePlan struct {
	Questions int `mapstructure:"questions"`
	MaxPoints int `mapstructure:"max_points"`
}

type AssessmentConfig struct {
	SessionWindowHours  int     `mapstructure:"session_window_hours"`
	TotalThreshold      int     `mapstructure:"total_threshold"`
	SafetyThreshold     float64 `mapstructure:"safety_threshold"`
	SpeakingThreshold   int     `mapstructure:"speaking_threshold"`
	MinRecordingSeconds int     `mapstructure:"min_recording_seconds"`

	Listening   ModulePlan `mapstructure:"listening"`
	TimeNumbers ModulePlan `mapstructure:"time_numbers"`
	Grammar     ModulePlan `mapstructure:"grammar"`
	Vocabulary  ModulePlan `mapstructure:"vocabulary"`
	Reading     ModulePlan `mapstructure:"reading"`
	Speaking    ModulePlan `mapstructure:"speaking"`
}

func (c *AssessmentConfig) SessionWindow() time.Duration {
	if c.SessionWindowHours <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.SessionWindowHours) * time.Hour
}

// Plan returns the draw plan for one module. Exhaustive over AllModules.
func (c *AssessmentConfig) Plan(m model.ModuleType) ModulePlan {
	switch m {
	case model.ModuleListening:
		return c.Listening
	case model.ModuleTimeNumbers:
		return c.TimeNumbers
	case model.ModuleGrammar:
		return c.Grammar
	case model.ModuleVocabulary:
		return c.Vocabulary
	case model.ModuleReading:
		return c.Reading
	case model.ModuleSpeaking:
		return c.Speaking
	}
	return ModulePlan{}
}

// TotalQuestions is the size of a full drawn set.
func (c *AssessmentConfig) TotalQuestions() int {
	total := 0
	for _, m := range model.AllModules {
		total += c.Plan(m).Questions
	}
	return total
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CREW_ASSESS")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Speech provider
	viper.BindEnv("speech.base_url", "SPEECH_BASE_URL")
	viper.BindEnv("speech.api_key", "SPEECH_API_KEY")
	viper.BindEnv("speech.model", "SPEECH_MODEL")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Assessment defaults: 21 questions, 100 points, 2h window,
	// thresholds 70 / 0.8 / 12.
	viper.SetDefault("assessment.session_window_hours", 2)
	viper.SetDefault("assessment.total_threshold", 70)
	viper.SetDefault("assessment.safety_threshold", 0.8)
	viper.SetDefault("assessment.speaking_threshold", 12)
	viper.SetDefault("assessment.min_recording_seconds", 3)
	viper.SetDefault("assessment.listening", map[string]int{"questions": 4, "max_points": 16})
	viper.SetDefault("assessment.time_numbers", map[string]int{"questions": 4, "max_points": 16})
	viper.SetDefault("assessment.grammar", map[string]int{"questions": 4, "max_points": 16})
	viper.SetDefault("assessment.vocabulary", map[string]int{"questions": 4, "max_points": 16})
	viper.SetDefault("assessment.reading", map[string]int{"questions": 4, "max_points": 16})
	viper.SetDefault("assessment.speaking", map[string]int{"questions": 1, "max_points": 20})

	viper.SetDefault("speech.timeout_seconds", 20)
	viper.SetDefault("speech.max_retries", 3)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
