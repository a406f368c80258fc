package config

import (
	types "FormCoach/pkg"
)

type Config struct {
	Server   ServerConfig         `mapstructure:"server" json:"server"`
	Database DatabaseConfig       `mapstructure:"database" json:"database"`
	Video    types.VideoConfig    `mapstructure:"video" json:"video"`
	Analysis types.AnalysisConfig `mapstructure:"analysis" json:"analysis"`
	Pipeline types.PipelineConfig `mapstructure:"pipeline" json:"pipeline"`
	Storage  types.StorageConfig  `mapstructure:"storage" json:"storage"`
	Logging  types.LoggingConfig  `mapstructure:"logging" json:"logging"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr" json:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins"`
	MaxUploadMB    int64    `mapstructure:"max_upload_mb" json:"max_upload_mb"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" json:"-"`
}

// secrets are read from the environment and win over the config file.
type secrets struct {
	GoogleAPIKey     string `env:"GOOGLE_API_KEY"`
	DatabaseURL      string `env:"DATABASE_URL"`
	AWSAccessKeyID   string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey     string `env:"AWS_SECRET_ACCESS_KEY"`
	MinIOAccessKey   string `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey   string `env:"MINIO_SECRET_KEY"`
	LogLevel         string `env:"LOG_LEVEL"`
	TemporalHostPort string `env:"TEMPORAL_HOST_PORT"`
}
