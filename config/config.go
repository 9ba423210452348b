package config

import (
	"time"

	"pulsewatch/pkg/db"
	"pulsewatch/pkg/rabbitmq"
	"pulsewatch/pkg/redisstore"
)

type AuthConfig struct {
	Secret    string `mapstructure:"secret" validate:"required"`
	ExpiryMin int    `mapstructure:"expiry_min"`
}

type DispatcherConfig struct {
	Interval  time.Duration `mapstructure:"interval" validate:"required"`
	BatchSize int           `mapstructure:"batch_size" validate:"gt=0"`
}

type IngestorConfig struct {
	Interval       time.Duration `mapstructure:"interval" validate:"required"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size" validate:"gt=0"`
	BatchSize      int           `mapstructure:"batch_size" validate:"gt=0"`
}

type WatchdogConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"required"`
	MissedTicks int           `mapstructure:"missed_ticks" validate:"gt=0"`
}

type ReconcilerConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required"`
}

type NotifierConfig struct {
	CooldownWindow time.Duration `mapstructure:"cooldown_window" validate:"required"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gt=0"`
	WorkerCount    int           `mapstructure:"worker_count" validate:"gt=0"`
	RetryInterval  time.Duration `mapstructure:"retry_interval" validate:"required"`
	CodeTTL        time.Duration `mapstructure:"code_ttl" validate:"required"`
	EmailEndpoint  string        `mapstructure:"email_endpoint"`
	EmailAPIKey    string        `mapstructure:"email_api_key"`
	SMSEndpoint    string        `mapstructure:"sms_endpoint"`
	SMSAPIKey      string        `mapstructure:"sms_api_key"`
}

type Config struct {
	Port        int    `mapstructure:"port"`
	Env         string `mapstructure:"env"`
	ServiceName string `mapstructure:"service_name"`

	// shared secret path segment for the regional worker callback
	IngestSecret string `mapstructure:"ingest_secret" validate:"required"`

	// geographic check-execution locations; targets reference a subset
	Regions []string `mapstructure:"regions" validate:"min=1"`

	// allowed per-target check intervals, seconds
	CheckIntervalOptions []int32 `mapstructure:"check_interval_options" validate:"min=1"`

	DB         db.Config         `mapstructure:"db"`
	Redis      redisstore.Config `mapstructure:"redis"`
	RabbitMQ   rabbitmq.Config   `mapstructure:"rabbitmq"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Dispatcher DispatcherConfig  `mapstructure:"dispatcher"`
	Ingestor   IngestorConfig    `mapstructure:"ingestor"`
	Watchdog   WatchdogConfig    `mapstructure:"watchdog"`
	Reconciler ReconcilerConfig  `mapstructure:"reconciler"`
	Notifier   NotifierConfig    `mapstructure:"notifier"`
}

// IntervalAllowed reports whether sec is one of the configured interval choices.
func (c *Config) IntervalAllowed(sec int32) bool {
	for _, opt := range c.CheckIntervalOptions {
		if opt == sec {
			return true
		}
	}
	return false
}
