package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tuplesaver/tuplesaver/internal/orm/sqlitedb"
)

// FileName is the config file looked up in the project directory
const FileName = "tuplesaver.yaml"

// EnvPrefix prefixes environment overrides, e.g. TUPLESAVER_DATABASE_PATH
const EnvPrefix = "TUPLESAVER"

// ErrConfigExists is returned by Write when the file is already there
var ErrConfigExists = errors.New("config file already exists")

// Config represents the tuplesaver configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Migrations MigrationsConfig `mapstructure:"migrations" yaml:"migrations"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path        string `mapstructure:"path" yaml:"path"`
	Driver      string `mapstructure:"driver" yaml:"driver"`
	JournalMode string `mapstructure:"journal_mode" yaml:"journal_mode"`
	ForeignKeys bool   `mapstructure:"foreign_keys" yaml:"foreign_keys"`
}

// MigrationsConfig locates migration scripts and backups
type MigrationsConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	BackupDir string `mapstructure:"backup_dir" yaml:"backup_dir"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "app.sqlite",
			Driver:      sqlitedb.DriverCGO,
			JournalMode: "WAL",
		},
		Migrations: MigrationsConfig{
			Dir:       "migrations",
			BackupDir: filepath.Join("migrations", "backups"),
		},
	}
}

// Load loads the configuration of the current directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads tuplesaver.yaml from dir, then applies TUPLESAVER_*
// environment variables, including those set by an optional dir/.env.
// Relative paths are resolved against dir.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()

	// Set defaults; every key needs one for env overrides to apply
	def := Default()
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("database.driver", def.Database.Driver)
	v.SetDefault("database.journal_mode", def.Database.JournalMode)
	v.SetDefault("database.foreign_keys", def.Database.ForeignKeys)
	v.SetDefault("migrations.dir", def.Migrations.Dir)
	v.SetDefault("migrations.backup_dir", "")

	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Migrations.BackupDir == "" {
		cfg.Migrations.BackupDir = filepath.Join(cfg.Migrations.Dir, "backups")
	}
	cfg.resolve(dir)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || sqlitedb.IsMemory(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Database.Path = abs(c.Database.Path)
	c.Migrations.Dir = abs(c.Migrations.Dir)
	c.Migrations.BackupDir = abs(c.Migrations.BackupDir)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path must be set")
	}
	if err := sqlitedb.ValidateDriver(cfg.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if err := sqlitedb.ValidateJournalMode(cfg.Database.JournalMode); err != nil {
		return fmt.Errorf("database.journal_mode: %w", err)
	}
	return nil
}

// Write saves cfg as yaml at path, refusing to replace an existing file
func Write(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
