package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Worker     WorkerConfig
	Processing ProcessingConfig
	Storage    StorageConfig
	FFmpeg     FFmpegConfig
	Stages     StagesConfig
	RateLimit  RateLimitConfig
	S3         S3Config
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	SnapshotTTL int // hours; 0 keeps snapshots forever
}

type WorkerConfig struct {
	Concurrency int
}

type ProcessingConfig struct {
	MaxConcurrentSegments int // process-wide governor capacity
}

type StorageConfig struct {
	UploadDir   string
	OutputDir   string
	TempDir     string
	MaxUploadMB int64
}

type FFmpegConfig struct {
	Path string
}

type StagesConfig struct {
	SwiftF0URL      string
	SVCURL          string
	InstrumentalURL string
	Timeout         int // seconds per stage request
}

type RateLimitConfig struct {
	JobsPerHour    int
	UploadsPerHour int
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.allowed_origins", "ALLOWED_ORIGINS")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("redis.snapshot_ttl", "SNAPSHOT_TTL_HOURS")
	_ = viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("processing.max_concurrent_segments", "MAX_CONCURRENT_SEGMENTS")
	_ = viper.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("storage.output_dir", "OUTPUT_DIR")
	_ = viper.BindEnv("storage.temp_dir", "TEMP_DIR")
	_ = viper.BindEnv("storage.max_upload_mb", "MAX_UPLOAD_MB")
	_ = viper.BindEnv("ffmpeg.path", "FFMPEG_PATH")
	_ = viper.BindEnv("stages.swiftf0_url", "SWIFTF0_URL")
	_ = viper.BindEnv("stages.svc_url", "SVC_URL")
	_ = viper.BindEnv("stages.instrumental_url", "INSTRUMENTAL_URL")
	_ = viper.BindEnv("stages.timeout", "STAGE_TIMEOUT")
	_ = viper.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = viper.BindEnv("ratelimit.uploads_per_hour", "RATELIMIT_UPLOADS_PER_HOUR")
	_ = viper.BindEnv("s3.endpoint", "S3_ENDPOINT")
	_ = viper.BindEnv("s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("s3.bucket_name", "S3_BUCKET_NAME")
	_ = viper.BindEnv("s3.public_url", "S3_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.allowed_origins", "*")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.snapshot_ttl", 72)
	viper.SetDefault("worker.concurrency", 2)
	viper.SetDefault("processing.max_concurrent_segments", 2)
	viper.SetDefault("storage.upload_dir", "./data/uploads")
	viper.SetDefault("storage.output_dir", "./data/outputs")
	viper.SetDefault("storage.temp_dir", "./data/tmp")
	viper.SetDefault("storage.max_upload_mb", 500)
	viper.SetDefault("ffmpeg.path", "ffmpeg")
	viper.SetDefault("ratelimit.jobs_per_hour", 10)
	viper.SetDefault("ratelimit.uploads_per_hour", 30)

	// Model host defaults
	viper.SetDefault("stages.swiftf0_url", "http://localhost:8091")
	viper.SetDefault("stages.svc_url", "http://localhost:8092")
	viper.SetDefault("stages.instrumental_url", "http://localhost:8093")
	viper.SetDefault("stages.timeout", 600)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:           viper.GetString("server.port"),
			Env:            viper.GetString("server.env"),
			LogLevel:       viper.GetString("server.log_level"),
			AllowedOrigins: viper.GetString("server.allowed_origins"),
		},
		Redis: RedisConfig{
			Addr:        viper.GetString("redis.addr"),
			Password:    viper.GetString("redis.password"),
			DB:          viper.GetInt("redis.db"),
			SnapshotTTL: viper.GetInt("redis.snapshot_ttl"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("worker.concurrency"),
		},
		Processing: ProcessingConfig{
			MaxConcurrentSegments: viper.GetInt("processing.max_concurrent_segments"),
		},
		Storage: StorageConfig{
			UploadDir:   viper.GetString("storage.upload_dir"),
			OutputDir:   viper.GetString("storage.output_dir"),
			TempDir:     viper.GetString("storage.temp_dir"),
			MaxUploadMB: viper.GetInt64("storage.max_upload_mb"),
		},
		FFmpeg: FFmpegConfig{
			Path: viper.GetString("ffmpeg.path"),
		},
		Stages: StagesConfig{
			SwiftF0URL:      viper.GetString("stages.swiftf0_url"),
			SVCURL:          viper.GetString("stages.svc_url"),
			InstrumentalURL: viper.GetString("stages.instrumental_url"),
			Timeout:         viper.GetInt("stages.timeout"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour:    viper.GetInt("ratelimit.jobs_per_hour"),
			UploadsPerHour: viper.GetInt("ratelimit.uploads_per_hour"),
		},
		S3: S3Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			BucketName:      viper.GetString("s3.bucket_name"),
			PublicURL:       viper.GetString("s3.public_url"),
		},
	}

	return cfg, nil
}
