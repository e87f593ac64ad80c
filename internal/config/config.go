package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port  string `mapstructure:"PORT"`
	DBUrl string `mapstructure:"DB_URL"`

	// Redis (idempotency + burst watch; disabled when unset)
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	IdempotencyTTLSec int    `mapstructure:"IDEMPOTENCY_TTL_SEC"`

	// Kafka ledger stream (disabled when brokers unset)
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	// MinIO raw postback archive (disabled when endpoint unset)
	MinIOEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string `mapstructure:"MINIO_BUCKET"`

	// Directory lookups
	LookupTimeoutMs int `mapstructure:"LOOKUP_TIMEOUT_MS"`

	// Burst watch
	BurstWindowSec int `mapstructure:"BURST_WINDOW_SEC"`
	BurstThreshold int `mapstructure:"BURST_THRESHOLD"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()
	viper.AutomaticEnv()

	viper.SetDefault("KAFKA_TOPIC", "commission-ledger")

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) GetKafkaBrokers() []string {
	brokers := strings.Split(c.KafkaBrokers, ",")

	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	return brokers
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.DBUrl == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.KafkaBrokers != "" && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.MinIOEndpoint != "" && c.MinIOBucket == "" {
		return fmt.Errorf("MINIO_BUCKET is required when MINIO_ENDPOINT is set")
	}
	if c.IdempotencyTTLSec <= 0 {
		c.IdempotencyTTLSec = 86400
	}
	if c.LookupTimeoutMs <= 0 {
		c.LookupTimeoutMs = 5000
	}
	if c.BurstWindowSec <= 0 {
		c.BurstWindowSec = 300
	}
	if c.BurstThreshold <= 0 {
		c.BurstThreshold = 1000
	}

	return nil
}
