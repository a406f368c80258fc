package types

type VideoConfig struct {
	Fourcc          string      `mapstructure:"fourcc" json:"fourcc"`
	DefaultFPS      float64     `mapstructure:"default_fps" json:"default_fps"`
	JPEGQuality     int         `mapstructure:"jpeg_quality" json:"jpeg_quality"`
	FallbackQuality int         `mapstructure:"fallback_quality" json:"fallback_quality"`
	MaxPayloadBytes int         `mapstructure:"max_payload_bytes" json:"max_payload_bytes"`
	Label           LabelConfig `mapstructure:"label" json:"label"`
}

type LabelConfig struct {
	FontScale float64 `mapstructure:"font_scale" json:"font_scale"`
	Thickness int     `mapstructure:"thickness" json:"thickness"`
	InsetX    int     `mapstructure:"inset_x" json:"inset_x"`
	InsetY    int     `mapstructure:"inset_y" json:"inset_y"`
}

type AnalysisConfig struct {
	APIKey          string  `mapstructure:"api_key" json:"-"`
	Model           string  `mapstructure:"model" json:"model"`
	PollIntervalSec float64 `mapstructure:"poll_interval_sec" json:"poll_interval_sec"`
	PollTimeoutSec  float64 `mapstructure:"poll_timeout_sec" json:"poll_timeout_sec"`
}

type PipelineConfig struct {
	Engine         string         `mapstructure:"engine" json:"engine"`
	MaxWorkers     int32          `mapstructure:"max_workers" json:"max_workers"`
	FFProbePath    string         `mapstructure:"ff_probe_path" json:"ff_probe_path"`
	WorkDir        string         `mapstructure:"work_dir" json:"work_dir"`
	MaxDurationSec float64        `mapstructure:"max_duration_sec" json:"max_duration_sec"`
	Retry          RetryConfig    `mapstructure:"retry" json:"retry"`
	Temporal       TemporalConfig `mapstructure:"temporal" json:"temporal"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port" json:"host_port"`
	Namespace string `mapstructure:"namespace" json:"namespace"`
	TaskQueue string `mapstructure:"task_queue" json:"task_queue"`
}

type RetryConfig struct {
	MaxAttempts        int32   `mapstructure:"max_attempts" json:"max_attempts"`
	InitialIntervalSec float64 `mapstructure:"initial_interval_sec" json:"initial_interval_sec"`
	BackoffCoefficient float64 `mapstructure:"backoff_coefficient" json:"backoff_coefficient"`
}

type StorageConfig struct {
	Type   string      `mapstructure:"type" json:"type"`
	Bucket string      `mapstructure:"bucket" json:"bucket"`
	Local  LocalConfig `mapstructure:"local" json:"local"`
	S3     S3Config    `mapstructure:"s3" json:"s3"`
	MinIO  MinIOConfig `mapstructure:"minio" json:"minio"`
}

type LocalConfig struct {
	BasePath string `mapstructure:"base_path" json:"base_path"`
}

type S3Config struct {
	Region          string `mapstructure:"region" json:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"-"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"-"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint" json:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"-"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"-"`
	UseSSL          bool   `mapstructure:"use_ssl" json:"use_ssl"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level" json:"level"`
	Output   string `mapstructure:"output" json:"output"`
	FilePath string `mapstructure:"file_path" json:"file_path"`
}
