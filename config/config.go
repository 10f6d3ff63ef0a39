package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const EnvPrefix = "VOTING"

// Config holds all configuration settings for the service
type Config struct {
	Environment string        `mapstructure:"environment" validate:"oneof=development production"`
	LogLevel    string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Server      ServerConfig  `mapstructure:"server"`
	Storage     StorageConfig `mapstructure:"storage"`
	Auth        AuthConfig    `mapstructure:"auth"`
	Log         LogConfig     `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Driver             string `mapstructure:"driver" validate:"oneof=json postgres"`
	DataDir            string `mapstructure:"data_dir" validate:"required"`
	PostgresURL        string `mapstructure:"postgres_url" validate:"required_if=Driver postgres"`
	QueueSize          int    `mapstructure:"queue_size" validate:"min=1"`
	CheckpointSchedule string `mapstructure:"checkpoint_schedule" validate:"required"`
	SnapshotsToKeep    int    `mapstructure:"snapshots_to_keep" validate:"min=1"`
	AdminKeyFile       string `mapstructure:"admin_key_file"`
	VotersFile         string `mapstructure:"voters_file"`
}

// AuthConfig holds sign-in settings
type AuthConfig struct {
	TokenSecret string        `mapstructure:"token_secret" validate:"omitempty,min=16"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

// LogConfig holds log file rotation settings
type LogConfig struct {
	OutputPath string `mapstructure:"output_path" validate:"required"`
	MaxSize    int    `mapstructure:"max_size" validate:"min=1"`
	MaxAge     int    `mapstructure:"max_age" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

// Flags returns the command line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("voting-workflow", pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML configuration file")
	fs.Int("port", 8080, "HTTP server port")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("data-dir", "data", "Directory for the journal, snapshots and keys")
	return fs
}

// Load reads configuration from defaults, an optional file, VOTING_*
// environment variables and the flags in fs, in increasing priority.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if fs != nil {
		for key, flag := range map[string]string{
			"server.port":      "port",
			"log_level":        "log-level",
			"storage.data_dir": "data-dir",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}

		if path, err := fs.GetString("config"); err == nil && path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("storage.driver", "json")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.queue_size", 1024)
	v.SetDefault("storage.checkpoint_schedule", "@every 5m")
	v.SetDefault("storage.snapshots_to_keep", 5)
	v.SetDefault("storage.admin_key_file", "")
	v.SetDefault("storage.voters_file", "")

	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("log.output_path", "logs/voting.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.console", true)
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%s: failed %q check (value %v)", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Value())
	}
	return err
}

// GetLogLevel returns a zap log level based on the configured string
func (c *Config) GetLogLevel() zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Environment) == "development"
}
