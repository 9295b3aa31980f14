package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Neo4j      Neo4jConfig
	Evaluation EvaluationConfig
	Scoring    ScoringConfig
	Matching   MatchingConfig
	Catalog    CatalogConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type EvaluationConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	Workers     int
}

type ScoringConfig struct {
	CriticalThreshold float64
	HighThreshold     float64
	MediumThreshold   float64
	SurfaceLow        bool
}

type MatchingConfig struct {
	DefaultThreshold float64
	DefaultLimit     int
	RelatedOverlap   float64
}

type CatalogConfig struct {
	DirectoryURL string
	RefreshCron  string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/complymatch")

	viper.SetEnvPrefix("COMPLYMATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 4194304)

	viper.SetDefault("sqlite.path", "./data/complymatch.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("evaluation.provider", "openai")
	viper.SetDefault("evaluation.model", "gpt-4")
	viper.SetDefault("evaluation.temperature", 0.1)
	viper.SetDefault("evaluation.maxTokens", 1024)
	viper.SetDefault("evaluation.timeoutSec", 60)
	viper.SetDefault("evaluation.workers", 4)

	viper.SetDefault("scoring.criticalThreshold", 0.25)
	viper.SetDefault("scoring.highThreshold", 0.5)
	viper.SetDefault("scoring.mediumThreshold", 0.75)
	viper.SetDefault("scoring.surfaceLow", false)

	viper.SetDefault("matching.defaultThreshold", 0.0)
	viper.SetDefault("matching.defaultLimit", 50)
	viper.SetDefault("matching.relatedOverlap", 0.5)

	viper.SetDefault("catalog.directoryURL", "")
	viper.SetDefault("catalog.refreshCron", "0 3 * * *")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
