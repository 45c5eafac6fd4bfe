package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration (loopback operation surface for the UI shell)
	Server ServerConfig `mapstructure:"server"`

	// Local storage configuration
	Local LocalConfig `mapstructure:"local"`

	// Remote mirror database configuration
	Remote RemoteConfig `mapstructure:"remote"`

	// Remote object storage configuration (letterhead bucket)
	Objects ObjectsConfig `mapstructure:"objects"`

	// Sync engine tuning
	Sync SyncConfig `mapstructure:"sync"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// LocalConfig holds the on-device store configuration
type LocalConfig struct {
	// Path of the bbolt database file
	Path string `mapstructure:"path"`
}

// RemoteConfig holds the mirror database configuration. When Enabled is
// false the engine runs fully offline and the pending flag simply stays set.
type RemoteConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// ObjectsConfig holds the letterhead bucket configuration
type ObjectsConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Bucket     string `mapstructure:"bucket"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	PublicBase string `mapstructure:"public_base"`
}

// SyncConfig holds sync engine tuning
type SyncConfig struct {
	// BatchSize caps rows per remote insert during a full mirror
	BatchSize int `mapstructure:"batch_size"`
	// QueueSize caps the fire-and-forget job queue
	QueueSize int `mapstructure:"queue_size"`
	// ProbeInterval is the reconnect watcher period in seconds
	ProbeInterval int `mapstructure:"probe_interval"`
	// ProbeTimeout bounds one reachability probe in seconds
	ProbeTimeout int `mapstructure:"probe_timeout"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/dokteryar")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults: loopback only, the UI shell runs on the same machine
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 7420)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Local store defaults
	viper.SetDefault("local.path", "dokteryar.db")

	// Remote mirror defaults
	viper.SetDefault("remote.enabled", true)
	viper.SetDefault("remote.host", "localhost")
	viper.SetDefault("remote.port", 5432)
	viper.SetDefault("remote.name", "dokteryar")
	viper.SetDefault("remote.user", "dokteryar")
	viper.SetDefault("remote.ssl_mode", "require")
	viper.SetDefault("remote.max_open_conns", 5)
	viper.SetDefault("remote.max_idle_conns", 2)
	viper.SetDefault("remote.conn_max_lifetime", 300)

	// Object storage defaults
	viper.SetDefault("objects.bucket", "doctor-headers")
	viper.SetDefault("objects.use_ssl", true)

	// Sync defaults
	viper.SetDefault("sync.batch_size", 100)
	viper.SetDefault("sync.queue_size", 64)
	viper.SetDefault("sync.probe_interval", 30)
	viper.SetDefault("sync.probe_timeout", 5)

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if path := os.Getenv("DOKTERYAR_DB_PATH"); path != "" {
		config.Local.Path = path
	}

	if password := os.Getenv("REMOTE_DB_PASSWORD"); password != "" {
		config.Remote.Password = password
	}

	if secret := os.Getenv("OBJECTS_SECRET_KEY"); secret != "" {
		config.Objects.SecretKey = secret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Local.Path == "" {
		return fmt.Errorf("local store path is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Sync.BatchSize <= 0 {
		return fmt.Errorf("invalid sync batch size: %d", config.Sync.BatchSize)
	}

	if config.Remote.Enabled && config.Remote.Password == "" {
		return fmt.Errorf("remote database password is required when the mirror is enabled")
	}

	return nil
}
