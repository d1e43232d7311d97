package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	App             AppConfig        `mapstructure:"app"`
	Registry        RegistryConfig   `mapstructure:"registry"`
	Backup          BackupConfig     `mapstructure:"backup"`
	Tools           ToolsConfig      `mapstructure:"tools"`
	Schedules       []ScheduleConfig `mapstructure:"schedules"`
	CleanupSchedule string           `mapstructure:"cleanup_schedule"`
	Metrics         MetricsConfig    `mapstructure:"metrics"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type RegistryConfig struct {
	// Path of the catalog file holding connections and backup history.
	Path string `mapstructure:"path"`
	// KeyFile holds the key material credentials are sealed with. It is
	// created on first use when missing.
	KeyFile string `mapstructure:"key_file"`
}

type BackupConfig struct {
	Root          string         `mapstructure:"root"`
	Timeout       time.Duration  `mapstructure:"timeout"`
	TestTimeout   time.Duration  `mapstructure:"test_timeout"`
	RetentionDays int            `mapstructure:"retention_days"`
	UploadTargets []UploadTarget `mapstructure:"upload_targets"`
}

type UploadTarget struct {
	Type     string `mapstructure:"type"`
	Enabled  bool   `mapstructure:"enabled"`
	Compress bool   `mapstructure:"compress"`

	// Local mirror
	Path string `mapstructure:"path"`

	// Google Drive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`

	// AWS S3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`

	// Telegram
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	SendFile   bool   `mapstructure:"send_file"`
	NotifyOnly bool   `mapstructure:"notify_only"`
}

// ToolsConfig names the external binaries each adapter runs.
type ToolsConfig struct {
	PgDump      string `mapstructure:"pg_dump"`
	Psql        string `mapstructure:"psql"`
	MySQLDump   string `mapstructure:"mysqldump"`
	MySQL       string `mapstructure:"mysql"`
	MariaDBDump string `mapstructure:"mariadb_dump"`
	MariaDB     string `mapstructure:"mariadb"`
	Sqlcmd      string `mapstructure:"sqlcmd"`
	// PgSSLMode is the libpq sslmode for pg_dump, psql and the probe.
	PgSSLMode string `mapstructure:"pg_sslmode"`
}

type ScheduleConfig struct {
	Connection string `mapstructure:"connection"`
	Cron       string `mapstructure:"cron"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load reads the YAML file at path. A missing file is not an error: every
// setting has a default and can be overridden with DBKEEPER_* variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("dbkeeper")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dbkeeper")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")

	v.SetDefault("registry.path", "data/catalog.yaml")
	v.SetDefault("registry.key_file", "data/catalog.key")

	v.SetDefault("backup.root", "backups")
	v.SetDefault("backup.timeout", 2*time.Hour)
	v.SetDefault("backup.test_timeout", 10*time.Second)
	v.SetDefault("backup.retention_days", 7)

	v.SetDefault("tools.pg_dump", "pg_dump")
	v.SetDefault("tools.psql", "psql")
	v.SetDefault("tools.mysqldump", "mysqldump")
	v.SetDefault("tools.mysql", "mysql")
	v.SetDefault("tools.mariadb_dump", "mariadb-dump")
	v.SetDefault("tools.mariadb", "mariadb")
	v.SetDefault("tools.sqlcmd", "sqlcmd")
	v.SetDefault("tools.pg_sslmode", "prefer")

	v.SetDefault("cleanup_schedule", "0 0 3 * * *")
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (c *Config) Validate() error {
	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path is required")
	}
	if c.Registry.KeyFile == "" {
		return fmt.Errorf("registry.key_file is required")
	}
	if c.Backup.Root == "" {
		return fmt.Errorf("backup.root is required")
	}
	if c.Backup.Timeout <= 0 {
		return fmt.Errorf("backup.timeout must be positive")
	}
	if c.Backup.TestTimeout <= 0 {
		return fmt.Errorf("backup.test_timeout must be positive")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must not be negative")
	}
	switch c.Tools.PgSSLMode {
	case "", "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("tools.pg_sslmode: unknown mode %q", c.Tools.PgSSLMode)
	}

	for i, target := range c.Backup.UploadTargets {
		if !target.Enabled {
			continue
		}
		switch target.Type {
		case "local":
			if target.Path == "" {
				return fmt.Errorf("upload_targets[%d]: path is required for local", i)
			}
		case "s3":
			if target.Bucket == "" || target.Region == "" {
				return fmt.Errorf("upload_targets[%d]: bucket and region are required for s3", i)
			}
		case "gdrive":
			if target.CredentialsFile == "" || target.FolderID == "" {
				return fmt.Errorf("upload_targets[%d]: credentials_file and folder_id are required for gdrive", i)
			}
		case "telegram":
			if target.BotToken == "" || target.ChatID == "" {
				return fmt.Errorf("upload_targets[%d]: bot_token and chat_id are required for telegram", i)
			}
		default:
			return fmt.Errorf("upload_targets[%d]: unknown type %q", i, target.Type)
		}
	}

	for i, s := range c.Schedules {
		if s.Connection == "" {
			return fmt.Errorf("schedules[%d]: connection is required", i)
		}
		if _, err := cronParser.Parse(s.Cron); err != nil {
			return fmt.Errorf("schedules[%d]: invalid cron %q: %w", i, s.Cron, err)
		}
	}

	if c.CleanupSchedule != "" {
		if _, err := cronParser.Parse(c.CleanupSchedule); err != nil {
			return fmt.Errorf("cleanup_schedule: invalid cron %q: %w", c.CleanupSchedule, err)
		}
	}

	return nil
}

func (c *Config) GetEnabledUploadTargets() []UploadTarget {
	var enabled []UploadTarget
	for _, target := range c.Backup.UploadTargets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}
