package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/opd-ai/sftptask/limits"
	"github.com/opd-ai/sftptask/remote"
	"github.com/opd-ai/sftptask/transfer"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config defines configuration for the sftptask CLI and engine.
type Config struct {
	Host                string        `yaml:"host"`
	Port                int           `yaml:"port"`
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	KnownHosts          string        `yaml:"known_hosts"`
	InsecureHostKey     bool          `yaml:"insecure_ignore_host_key"`
	DialTimeout         time.Duration `yaml:"dial_timeout"`
	ChunkSize           int           `yaml:"chunk_size"`
	CancelCheckInterval int           `yaml:"cancel_check_interval"`
	LogLevel            string        `yaml:"log_level"`
	LogFile             string        `yaml:"log_file"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Port:                remote.DefaultPort,
		KnownHosts:          remote.DefaultKnownHostsFile,
		DialTimeout:         remote.DefaultDialTimeout,
		ChunkSize:           limits.DefaultChunkSize,
		CancelCheckInterval: limits.DefaultCancelCheckInterval,
		LogLevel:            "info",
	}
}

// yamlConfig is used for YAML unmarshaling with a string dial timeout.
type yamlConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	Username            string `yaml:"username"`
	Password            string `yaml:"password"`
	KnownHosts          string `yaml:"known_hosts"`
	InsecureHostKey     bool   `yaml:"insecure_ignore_host_key"`
	DialTimeout         string `yaml:"dial_timeout"`
	ChunkSize           int    `yaml:"chunk_size"`
	CancelCheckInterval int    `yaml:"cancel_check_interval"`
	LogLevel            string `yaml:"log_level"`
	LogFile             string `yaml:"log_file"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	if yc.DialTimeout != "" {
		d, err := time.ParseDuration(yc.DialTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.DialTimeout = d
	}

	cfg = cfg.Merge(Config{
		Host:                yc.Host,
		Port:                yc.Port,
		Username:            yc.Username,
		Password:            yc.Password,
		KnownHosts:          yc.KnownHosts,
		InsecureHostKey:     yc.InsecureHostKey,
		ChunkSize:           yc.ChunkSize,
		CancelCheckInterval: yc.CancelCheckInterval,
		LogLevel:            yc.LogLevel,
		LogFile:             yc.LogFile,
	})

	logrus.WithFields(logrus.Fields{
		"function": "LoadFromFile",
		"path":     path,
	}).Debug("Configuration file loaded")

	return cfg, nil
}

// LoadEnvFile loads variables from a dotenv file into the process environment
// without overriding variables that are already set. An empty path means ".env";
// a missing default file is not an error.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies environment overrides. Connection settings use the SFTP_
// prefix, engine settings the SFTPTASK_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SFTP_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("SFTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SFTP_PORT: %w", err)
		}
		c.Port = n
	}
	if v := os.Getenv("SFTP_USER"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("SFTP_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("SFTP_KNOWN_HOSTS"); v != "" {
		c.KnownHosts = v
	}
	if v := os.Getenv("SFTP_INSECURE_IGNORE_HOST_KEY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse SFTP_INSECURE_IGNORE_HOST_KEY: %w", err)
		}
		c.InsecureHostKey = b
	}
	if v := os.Getenv("SFTPTASK_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SFTPTASK_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = n
	}
	if v := os.Getenv("SFTPTASK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("config: host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.Username == "" {
		return errors.New("config: username is required")
	}
	if c.DialTimeout <= 0 {
		return errors.New("config: dial_timeout must be positive")
	}
	if err := limits.ValidateChunkSize(c.ChunkSize); err != nil {
		return fmt.Errorf("config: chunk_size: %w", err)
	}
	if err := limits.ValidateCancelCheckInterval(c.CancelCheckInterval); err != nil {
		return fmt.Errorf("config: cancel_check_interval: %w", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so InsecureHostKey can only be switched on.
func (c Config) Merge(override Config) Config {
	if override.Host != "" {
		c.Host = override.Host
	}
	if override.Port != 0 {
		c.Port = override.Port
	}
	if override.Username != "" {
		c.Username = override.Username
	}
	if override.Password != "" {
		c.Password = override.Password
	}
	if override.KnownHosts != "" {
		c.KnownHosts = override.KnownHosts
	}
	if override.InsecureHostKey {
		c.InsecureHostKey = true
	}
	if override.DialTimeout != 0 {
		c.DialTimeout = override.DialTimeout
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.CancelCheckInterval != 0 {
		c.CancelCheckInterval = override.CancelCheckInterval
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogFile != "" {
		c.LogFile = override.LogFile
	}
	return c
}

// ConnectionParams returns the remote endpoint described by c.
func (c Config) ConnectionParams() remote.ConnectionParams {
	return remote.ConnectionParams{
		Host:     c.Host,
		Port:     uint16(c.Port),
		Username: c.Username,
		Password: c.Password,
	}
}

// SSHOptions returns the SSH channel settings described by c.
func (c Config) SSHOptions() remote.SSHOptions {
	return remote.SSHOptions{
		KnownHostsFile:        c.KnownHosts,
		InsecureIgnoreHostKey: c.InsecureHostKey,
		DialTimeout:           c.DialTimeout,
	}
}

// EngineOptions returns the transfer engine options described by c.
func (c Config) EngineOptions() []transfer.Option {
	return []transfer.Option{
		transfer.WithChunkSize(c.ChunkSize),
		transfer.WithCancelCheckInterval(c.CancelCheckInterval),
	}
}
