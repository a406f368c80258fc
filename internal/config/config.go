package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type ConfigLoader struct {
	logger *zap.Logger
	v      *viper.Viper
}

func NewConfigLoader(logger *zap.Logger) *ConfigLoader {
	v := viper.New()
	v.SetConfigType("yaml")
	return &ConfigLoader{
		logger: logger,
		v:      v,
	}
}

// Load reads filePath, overlays secrets from the environment and fills
// defaults. An empty filePath yields the defaults alone.
func (cl *ConfigLoader) Load(filePath string) (*Config, error) {
	if filePath != "" {
		cl.v.SetConfigFile(filePath)
		if err := cl.v.ReadInConfig(); err != nil {
			cl.logger.Error("Failed to read config file", zap.String("file", filePath), zap.Error(err))
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := cl.v.Unmarshal(&cfg); err != nil {
		cl.logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applySecrets(&cfg); err != nil {
		cl.logger.Error("Failed to read environment", zap.Error(err))
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cl.validate(&cfg); err != nil {
		cl.logger.Error("Config validation failed", zap.Error(err))
		return nil, err
	}

	cl.logger.Info("Config loaded successfully", zap.String("file", filePath))
	return &cfg, nil
}

func applySecrets(cfg *Config) error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return err
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Analysis.APIKey, s.GoogleAPIKey)
	override(&cfg.Database.DSN, s.DatabaseURL)
	override(&cfg.Storage.S3.AccessKeyID, s.AWSAccessKeyID)
	override(&cfg.Storage.S3.SecretAccessKey, s.AWSSecretKey)
	override(&cfg.Storage.MinIO.AccessKeyID, s.MinIOAccessKey)
	override(&cfg.Storage.MinIO.SecretAccessKey, s.MinIOSecretKey)
	override(&cfg.Logging.Level, s.LogLevel)
	override(&cfg.Pipeline.Temporal.HostPort, s.TemporalHostPort)
	return nil
}

func (cl *ConfigLoader) validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadMB < 0 {
		return fmt.Errorf("server.max_upload_mb must be non-negative")
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 200
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	if cfg.Video.Fourcc == "" {
		cfg.Video.Fourcc = "avc1" // Re-uploadable H.264 in MP4
	}
	if !isValidFourcc(cfg.Video.Fourcc) {
		return fmt.Errorf("invalid fourcc: %s", cfg.Video.Fourcc)
	}
	if cfg.Video.JPEGQuality == 0 {
		cfg.Video.JPEGQuality = 90
	}
	if cfg.Video.JPEGQuality < 1 || cfg.Video.JPEGQuality > 100 {
		return fmt.Errorf("video.jpeg_quality must be between 1 and 100")
	}
	if cfg.Video.FallbackQuality == 0 {
		cfg.Video.FallbackQuality = min(60, cfg.Video.JPEGQuality)
	}
	if cfg.Video.FallbackQuality < 1 || cfg.Video.FallbackQuality > cfg.Video.JPEGQuality {
		return fmt.Errorf("video.fallback_quality must be between 1 and jpeg_quality")
	}
	if cfg.Video.MaxPayloadBytes < 0 {
		return fmt.Errorf("video.max_payload_bytes must be non-negative")
	}
	if cfg.Video.MaxPayloadBytes == 0 {
		cfg.Video.MaxPayloadBytes = 4 << 20
	}

	if cfg.Analysis.Model == "" {
		cfg.Analysis.Model = "gemini-2.5-flash"
	}
	if cfg.Analysis.PollIntervalSec <= 0 {
		cfg.Analysis.PollIntervalSec = 2.0 // Default
	}
	if cfg.Analysis.PollTimeoutSec <= 0 {
		cfg.Analysis.PollTimeoutSec = 300 // Default
	}
	if cfg.Analysis.PollTimeoutSec < cfg.Analysis.PollIntervalSec {
		return fmt.Errorf("analysis.poll_timeout_sec must not be shorter than poll_interval_sec")
	}

	if cfg.Pipeline.Engine == "" {
		cfg.Pipeline.Engine = "local"
	}
	if cfg.Pipeline.Engine != "local" && cfg.Pipeline.Engine != "temporal" {
		return fmt.Errorf("invalid pipeline engine: %s", cfg.Pipeline.Engine)
	}
	if cfg.Pipeline.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must be non-negative")
	}
	if cfg.Pipeline.MaxWorkers == 0 {
		cfg.Pipeline.MaxWorkers = 2 // Default
	}
	if cfg.Pipeline.FFProbePath == "" {
		cfg.Pipeline.FFProbePath = "ffprobe" // Default to the one that's in PATH
	}
	if cfg.Pipeline.WorkDir == "" {
		cfg.Pipeline.WorkDir = filepath.Join(os.TempDir(), "formcoach")
	}
	if cfg.Pipeline.MaxDurationSec < 0 {
		return fmt.Errorf("max_duration_sec must be non-negative")
	}

	if cfg.Pipeline.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be non-negative")
	}
	if cfg.Pipeline.Retry.MaxAttempts == 0 {
		cfg.Pipeline.Retry.MaxAttempts = 3 // Default
	}
	if cfg.Pipeline.Retry.InitialIntervalSec <= 0 {
		cfg.Pipeline.Retry.InitialIntervalSec = 1.0 // Default
	}
	if cfg.Pipeline.Retry.BackoffCoefficient <= 1 {
		cfg.Pipeline.Retry.BackoffCoefficient = 2.0 // Default
	}

	if cfg.Pipeline.Temporal.HostPort == "" {
		cfg.Pipeline.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Pipeline.Temporal.Namespace == "" {
		cfg.Pipeline.Temporal.Namespace = "default"
	}
	if cfg.Pipeline.Temporal.TaskQueue == "" {
		cfg.Pipeline.Temporal.TaskQueue = "formcoach-analysis"
	}

	storage := strings.ToLower(cfg.Storage.Type)
	cfg.Storage.Type = storage
	switch storage {
	case "", "none":
		cfg.Storage.Type = "none"
	case "s3":
		if cfg.Storage.Bucket == "" {
			return fmt.Errorf("s3 bucket required")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("s3 region required")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3 access_key and secret_key required")
		}
	case "minio":
		if cfg.Storage.Bucket == "" || cfg.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("minio endpoint and bucket required")
		}
		if cfg.Storage.MinIO.AccessKeyID == "" || cfg.Storage.MinIO.SecretAccessKey == "" {
			return fmt.Errorf("minio access_key and secret_key required")
		}
	case "local":
		if cfg.Storage.Local.BasePath == "" {
			cfg.Storage.Local.BasePath = "./artifacts"
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", storage)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if !isValidLogLevel(cfg.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "console"
	}
	if cfg.Logging.Output == "file" && cfg.Logging.FilePath == "" {
		return fmt.Errorf("file_path required for file logging")
	}

	return nil
}

func isValidFourcc(fourcc string) bool {
	return slices.Contains([]string{"avc1", "mp4v", "h264", "x264"}, fourcc)
}

func isValidLogLevel(level string) bool {
	levels := []string{"debug", "info", "warn", "error"}
	for _, l := range levels {
		if strings.ToLower(level) == l {
			return true
		}
	}
	return false
}
