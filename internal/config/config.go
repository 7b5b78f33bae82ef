// Package config loads service settings from the environment via viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// PostgresConfig holds the relational backend connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.DB)
}

// KafkaConfig holds broker and topic settings for the message bus.
type KafkaConfig struct {
	BootstrapServers       string
	ConsumerGroup          string
	TopicWorkflowTrigger   string
	TopicWorkflowCompleted string
}

// RedisConfig holds cache connection settings.
type RedisConfig struct {
	Host string
	Port string
}

// Addr renders the host:port pair for the Redis client.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// Config is the full service configuration.
type Config struct {
	Port             string
	StorageBackend   string
	DataDir          string
	DefaultPageLimit int
	Postgres         PostgresConfig
	Kafka            KafkaConfig
	Redis            RedisConfig
}

// Load reads configuration from environment variables, applying defaults
// for everything that is optional in a development setup. It uses the
// shared viper instance so cobra flag bindings take effect.
func Load() *Config {
	v := viper.GetViper()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("STORAGE_BACKEND", "postgres")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("DEFAULT_PAGE_LIMIT", 50)

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_DB", "workflows")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")

	v.SetDefault("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "workflow-workers")
	v.SetDefault("KAFKA_TOPIC_WORKFLOW_TRIGGER", "workflow.trigger")
	v.SetDefault("KAFKA_TOPIC_WORKFLOW_COMPLETED", "workflow.completed")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")

	return &Config{
		Port:             v.GetString("PORT"),
		StorageBackend:   v.GetString("STORAGE_BACKEND"),
		DataDir:          v.GetString("DATA_DIR"),
		DefaultPageLimit: v.GetInt("DEFAULT_PAGE_LIMIT"),
		Postgres: PostgresConfig{
			Host:     v.GetString("POSTGRES_HOST"),
			Port:     v.GetString("POSTGRES_PORT"),
			DB:       v.GetString("POSTGRES_DB"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
		},
		Kafka: KafkaConfig{
			BootstrapServers:       v.GetString("KAFKA_BOOTSTRAP_SERVERS"),
			ConsumerGroup:          v.GetString("KAFKA_CONSUMER_GROUP"),
			TopicWorkflowTrigger:   v.GetString("KAFKA_TOPIC_WORKFLOW_TRIGGER"),
			TopicWorkflowCompleted: v.GetString("KAFKA_TOPIC_WORKFLOW_COMPLETED"),
		},
		Redis: RedisConfig{
			Host: v.GetString("REDIS_HOST"),
			Port: v.GetString("REDIS_PORT"),
		},
	}
}
