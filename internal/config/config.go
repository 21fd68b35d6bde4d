package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	RabbitMQ   RabbitMQConfig
	Redis      RedisConfig
	SMTP       SMTPConfig
	Auth       AuthConfig
	Scheduling SchedulingConfig
	LogLevel   string `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port    string
	Timeout time.Duration
}

type DBConfig struct {
	Path string
}

type RabbitMQConfig struct {
	URL         string
	EmailQueue  string `mapstructure:"email_queue"`
	FailedQueue string `mapstructure:"failed_queue"`
	Exchange    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Password string
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SchedulingConfig struct {
	LifeRefillWait      time.Duration `mapstructure:"life_refill_wait"`
	PassingThreshold    float64       `mapstructure:"passing_threshold"`
	MinInferenceSamples int           `mapstructure:"min_inference_samples"`
	RetentionDays       int           `mapstructure:"retention_days"`
	SweepBatch          int           `mapstructure:"sweep_batch"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.timeout", "10s")
	viper.SetDefault("db.path", "./data/reminders.db")
	viper.SetDefault("rabbitmq.exchange", "reminders.direct")
	viper.SetDefault("rabbitmq.email_queue", "email.queue")
	viper.SetDefault("rabbitmq.failed_queue", "failed.queue")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("scheduling.life_refill_wait", "30m")
	viper.SetDefault("scheduling.passing_threshold", 70)
	viper.SetDefault("scheduling.min_inference_samples", 5)
	viper.SetDefault("scheduling.retention_days", 30)
	viper.SetDefault("scheduling.sweep_batch", 500)
	viper.SetDefault("log_level", "info")

	// Read from environment
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
