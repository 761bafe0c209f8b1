package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds server and client configuration values.
type Config struct {
	LogLevel string       `mapstructure:"log_level" yaml:"log_level"`
	Server   ServerConfig `mapstructure:"server" yaml:"server"`
	Client   ClientConfig `mapstructure:"client" yaml:"client"`
}

// ServerConfig configures the relay server.
type ServerConfig struct {
	Host              string         `mapstructure:"host" yaml:"host"`
	Port              int            `mapstructure:"port" yaml:"port"`
	HTTPAddr          string         `mapstructure:"http_addr" yaml:"http_addr"` // empty disables the HTTP server
	MaxFrameBytes     int            `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
	BusCapacity       int            `mapstructure:"bus_capacity" yaml:"bus_capacity"`
	RequireUUID       bool           `mapstructure:"require_uuid" yaml:"require_uuid"`
	WriteTimeout      time.Duration  `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReadHeaderTimeout time.Duration  `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration  `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	PersistQueue      int            `mapstructure:"persist_queue" yaml:"persist_queue"`
	AttachmentsDir    string         `mapstructure:"attachments_dir" yaml:"attachments_dir"` // empty disables attachment copies
	Database          DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite or mysql
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// ClientConfig configures the interactive client.
type ClientConfig struct {
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             int           `mapstructure:"port" yaml:"port"`
	Identifier       string        `mapstructure:"identifier" yaml:"identifier"` // empty picks a random UUID
	Transport        string        `mapstructure:"transport" yaml:"transport"`   // tcp or ws
	WSPath           string        `mapstructure:"ws_path" yaml:"ws_path"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	AuthTimeout      time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	RetryInterval    time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	RetryBudget      time.Duration `mapstructure:"retry_budget" yaml:"retry_budget"`
	RetryMultiplier  float64       `mapstructure:"retry_multiplier" yaml:"retry_multiplier"`
	MaxRetryInterval time.Duration `mapstructure:"max_retry_interval" yaml:"max_retry_interval"`
	DownloadsDir     string        `mapstructure:"downloads_dir" yaml:"downloads_dir"`
	MaxFrameBytes    int           `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
}

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	TransportTCP = "tcp"
	TransportWS  = "ws"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              11111,
			MaxFrameBytes:     16 << 20,
			BusCapacity:       64,
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			PersistQueue:      256,
			AttachmentsDir:    "files",
			Database: DatabaseConfig{
				Driver: DriverSQLite,
				DSN:    "wirerelay.db",
			},
		},
		Client: ClientConfig{
			Host:             "127.0.0.1",
			Port:             11111,
			Transport:        TransportTCP,
			WSPath:           "/ws",
			ConnectTimeout:   5 * time.Second,
			AuthTimeout:      10 * time.Second,
			RetryInterval:    10 * time.Second,
			RetryBudget:      10 * time.Minute,
			RetryMultiplier:  1.0,
			MaxRetryInterval: time.Minute,
			DownloadsDir:     "files",
			MaxFrameBytes:    16 << 20,
		},
	}
}

// Addr returns host:port of the TCP relay listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Addr returns host:port of the relay the client dials.
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (s *ServerConfig) UpdateFrom(other ServerConfig) {
	if other.Host != "" {
		s.Host = other.Host
	}
	if other.Port != 0 {
		s.Port = other.Port
	}
	if other.HTTPAddr != "" {
		s.HTTPAddr = other.HTTPAddr
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *ClientConfig) UpdateFrom(other ClientConfig) {
	if other.Host != "" {
		c.Host = other.Host
	}
	if other.Port != 0 {
		c.Port = other.Port
	}
	if other.Identifier != "" {
		c.Identifier = other.Identifier
	}
	if other.Transport != "" {
		c.Transport = other.Transport
	}
}

// Validate checks values that have no usable fallback.
func (s ServerConfig) Validate() error {
	var errs []error
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", s.Port))
	}
	switch s.Database.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("server.database.driver %q: want %s or %s", s.Database.Driver, DriverSQLite, DriverMySQL))
	}
	if s.Database.DSN == "" {
		errs = append(errs, errors.New("server.database.dsn is empty"))
	}
	if s.MaxFrameBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_frame_bytes %d must not be negative", s.MaxFrameBytes))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, errors.New("server.write_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks values that have no usable fallback.
func (c ClientConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("client.port %d out of range", c.Port))
	}
	switch c.Transport {
	case TransportTCP, TransportWS:
	default:
		errs = append(errs, fmt.Errorf("client.transport %q: want %s or %s", c.Transport, TransportTCP, TransportWS))
	}
	if c.RetryInterval <= 0 {
		errs = append(errs, errors.New("client.retry_interval must be positive"))
	}
	if c.RetryMultiplier < 1 {
		errs = append(errs, fmt.Errorf("client.retry_multiplier %v must be >= 1", c.RetryMultiplier))
	}
	if c.RetryBudget <= 0 {
		errs = append(errs, errors.New("client.retry_budget must be positive"))
	}
	if c.AuthTimeout <= 0 {
		errs = append(errs, errors.New("client.auth_timeout must be positive"))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, errors.New("client.connect_timeout must not be negative"))
	}
	// 0 selects the protocol default.
	if c.MaxFrameBytes < 0 {
		errs = append(errs, fmt.Errorf("client.max_frame_bytes %d must not be negative", c.MaxFrameBytes))
	}
	return errors.Join(errs...)
}
