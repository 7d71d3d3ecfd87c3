package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Telegram TelegramConfig
	Storage  StorageConfig
	Share    ShareConfig
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

// TelegramConfig holds MTProto credentials and the knobs of the
// Saved Messages storage core.
type TelegramConfig struct {
	AppID          int           `mapstructure:"app_id"`
	AppHash        string        `mapstructure:"app_hash"`
	SessionFile    string        `mapstructure:"session_file"`
	ScratchDir     string        `mapstructure:"scratch_dir"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ScanLimit      int           `mapstructure:"scan_limit"`

	// When false (the default), reconciliation never deletes catalog rows
	// whose message id predates the oldest message in the remote snapshot.
	ScanPruneOutsideWindow bool `mapstructure:"scan_prune_outside_window"`

	// Upper bound on caption ID backfill edits per reconciliation run.
	CaptionBackfillLimit int `mapstructure:"caption_backfill_limit"`
}

type StorageConfig struct {
	UploadsRoot string `mapstructure:"uploads_root"`
	OutputRoot  string `mapstructure:"output_root"`
	TempRoot    string `mapstructure:"temp_root"`
}

type ShareConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	CookieName string `mapstructure:"cookie_name"`
	BaseURL    string `mapstructure:"base_url"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.AcquireTimeout == 0 {
		c.Telegram.AcquireTimeout = 120 * time.Second
	}
	if c.Telegram.ConnectTimeout == 0 {
		c.Telegram.ConnectTimeout = 120 * time.Second
	}
	if c.Telegram.ScanLimit == 0 {
		c.Telegram.ScanLimit = 500
	}
	if c.Telegram.CaptionBackfillLimit == 0 {
		c.Telegram.CaptionBackfillLimit = 25
	}
	if c.Telegram.SessionFile == "" {
		c.Telegram.SessionFile = "data/session.db"
	}
	if c.Telegram.ScratchDir == "" {
		c.Telegram.ScratchDir = "data/storage_temp"
	}
	if c.Storage.UploadsRoot == "" {
		c.Storage.UploadsRoot = "data/uploads"
	}
	if c.Storage.OutputRoot == "" {
		c.Storage.OutputRoot = "output"
	}
	if c.Storage.TempRoot == "" {
		c.Storage.TempRoot = "data/storage_temp"
	}
	if c.Share.CookieName == "" {
		c.Share.CookieName = "teledrive_share"
	}
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
