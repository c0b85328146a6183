package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ApplySchema     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	PublicBaseURL string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	Region        string
	PresignExpiry time.Duration
}

type SecurityConfig struct {
	JWTAccessSecret string
}

type LibraryConfig struct {
	// DistributedLock guards bulk operations across API instances via Redis.
	DistributedLock bool
	LockTTL         time.Duration
	Concurrency     int
}

type EditorConfig struct {
	JPEGQuality     int
	MaxSourceBytes  int64
	TransferTimeout time.Duration
}

type WatermarkConfig struct {
	SettingsKey      string
	LogoCacheSize    int
	LogoFetchTimeout time.Duration
}

type JobsConfig struct {
	SweepSchedule    string
	StaleReservation time.Duration
	SweepBatchSize   int
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Library          LibraryConfig
	Editor           EditorConfig
	Watermark        WatermarkConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("MEDIALIB")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.applyschema", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucket", "medialib-assets")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presignexpiry", "15m")

	v.SetDefault("library.distributedlock", true)
	v.SetDefault("library.lockttl", "2m")
	v.SetDefault("library.concurrency", 8)

	v.SetDefault("editor.jpegquality", 95)
	v.SetDefault("editor.maxsourcebytes", 50<<20)
	v.SetDefault("editor.transfertimeout", "60s")

	v.SetDefault("watermark.settingskey", "medialib:watermark:settings")
	v.SetDefault("watermark.logocachesize", 16)
	v.SetDefault("watermark.logofetchtimeout", "10s")

	v.SetDefault("jobs.sweepschedule", "@every 10m")
	v.SetDefault("jobs.stalereservation", "1h")
	v.SetDefault("jobs.sweepbatchsize", 100)
}
