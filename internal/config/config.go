// Package config loads service configuration from config.yaml and the
// environment. Every key carries a default, so a missing config file is a
// warning rather than an error.
package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type (
	// AppConfig is the full configuration tree for both binaries.
	AppConfig struct {
		API    *API    `mapstructure:"api"`
		Batch  *Batch  `mapstructure:"batch"`
		DB     *DB     `mapstructure:"db"`
		Kafka  *Kafka  `mapstructure:"kafka"`
		Server *Server `mapstructure:"server"`
		Logger *Logger `mapstructure:"logger"`
	}

	// API locates the text-generation web UI endpoint.
	API struct {
		BaseURL        string        `mapstructure:"base_url"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	}

	// Batch tunes the orchestrator and result persistence.
	Batch struct {
		ResultsDir       string  `mapstructure:"results_dir"`
		MaxConcurrent    int     `mapstructure:"max_concurrent"`
		QualityThreshold float64 `mapstructure:"quality_threshold"`
		MaxRetries       int     `mapstructure:"max_retries"`
	}

	// DB selects the database backend. Type is "mysql" or "sqlite".
	DB struct {
		Type string `mapstructure:"type"`
		DSN  string `mapstructure:"dsn"`
	}

	// Kafka configures completion-event publishing. Empty Brokers disables it.
	Kafka struct {
		Brokers         []string `mapstructure:"brokers"`
		CompletionTopic string   `mapstructure:"completion_topic"`
	}

	// Server holds the HTTP listen address of the manager.
	Server struct {
		Addr string `mapstructure:"addr"`
	}

	// Logger configures the zap logger.
	Logger struct {
		Level         string                `mapstructure:"level"`
		Encoding      string                `mapstructure:"encoding"`
		EncoderConfig zapcore.EncoderConfig `mapstructure:"encoderConfig"`
	}
)

func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:5000")
	viper.SetDefault("api.request_timeout", "60s")

	viper.SetDefault("batch.results_dir", "./results/batch_generation")
	viper.SetDefault("batch.max_concurrent", 3)
	viper.SetDefault("batch.quality_threshold", 0.6)
	viper.SetDefault("batch.max_retries", 1)

	viper.SetDefault("db.type", "sqlite")
	viper.SetDefault("db.dsn", "batch_service.db")

	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.completion_topic", "batch_completion_events")

	viper.SetDefault("server.addr", ":8080")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "console")
}

func addZapEncoderConfig(cfg *zapcore.EncoderConfig) {
	cfg.MessageKey = "msg"
	cfg.LevelKey = "level"
	cfg.TimeKey = "ts"
	cfg.CallerKey = "caller"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
}

// New reads config.yaml from the working directory and /etc/batch-service/,
// overlays environment variables, and falls back to defaults for anything
// unset.
func New() *AppConfig {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/batch-service/")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("config file not found, using defaults: %v", err)
		} else {
			log.Fatalf("error reading config file: %v", err)
		}
	}

	viper.BindEnv("api.base_url", "TGW_API_URL")
	viper.BindEnv("db.type", "DB_TYPE")
	viper.BindEnv("db.dsn", "DB_DSN")
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("server.addr", "SERVER_ADDR")

	var config *AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("unable to decode config into struct: %v", err)
	}
	addZapEncoderConfig(&config.Logger.EncoderConfig)

	return config
}
