package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// defaults first
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("service_name", "pulsewatch")
	v.SetDefault("port", 8080)

	v.SetDefault("regions", []string{"us-east", "eu-west", "ap-south"})
	v.SetDefault("check_interval_options", []int32{60, 300, 900, 3600})

	v.SetDefault("auth.expiry_min", 30)

	v.SetDefault("dispatcher.interval", "10s")
	v.SetDefault("dispatcher.batch_size", 500)

	v.SetDefault("ingestor.interval", "5s")
	v.SetDefault("ingestor.worker_pool_size", 20)
	v.SetDefault("ingestor.batch_size", 1000)

	v.SetDefault("watchdog.interval", "30s")
	v.SetDefault("watchdog.missed_ticks", 3)

	v.SetDefault("reconciler.interval", "10s")

	v.SetDefault("notifier.cooldown_window", "15m")
	v.SetDefault("notifier.max_attempts", 5)
	v.SetDefault("notifier.worker_count", 10)
	v.SetDefault("notifier.retry_interval", "1m")
	v.SetDefault("notifier.code_ttl", "10m")

	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.conn_max_lifetime", "2m")
	v.SetDefault("redis.conn_max_idle_time", "30s")

	v.SetDefault("db.max_open_conns", 50)
	v.SetDefault("db.min_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "1h")
	v.SetDefault("db.conn_max_idle_time", "30m")
	v.SetDefault("db.health_timeout", "5s")

	v.SetDefault("rabbitmq.exchange_name", "checks")
	v.SetDefault("rabbitmq.exchange_type", "direct")
	v.SetDefault("rabbitmq.results_queue", "check.results")
	v.SetDefault("rabbitmq.results_routing_key", "check.result")
	v.SetDefault("rabbitmq.worker_count", 10)
}

func validateConfig(cfg *Config) error {

	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return formatValidationErrors(ve)
		}
		return err
	}
	return nil
}

func formatValidationErrors(ve validator.ValidationErrors) error {
	var sb strings.Builder
	sb.WriteString("config validation failed:\n")

	for _, fe := range ve {
		fmt.Fprintf(&sb, "- field '%s' failed on '%s'\n", fe.Namespace(), fe.Tag())
	}
	return errors.New(sb.String())
}
