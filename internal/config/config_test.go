package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	want := Default()
	if cfg.Server.Addr() != "127.0.0.1:11111" {
		t.Fatalf("server addr = %q", cfg.Server.Addr())
	}
	if cfg.Client.RetryInterval != want.Client.RetryInterval || cfg.Client.RetryBudget != want.Client.RetryBudget {
		t.Fatalf("retry defaults = %v/%v", cfg.Client.RetryInterval, cfg.Client.RetryBudget)
	}
	if cfg.Server.Database.Driver != DriverSQLite {
		t.Fatalf("driver = %q", cfg.Server.Database.Driver)
	}

	// Reading the written file back yields the same values.
	again, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again != cfg {
		t.Fatalf("reloaded config differs:\n%+v\n%+v", again, cfg)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
server:
  port: 9000
  http_addr: ":8080"
  write_timeout: 3s
client:
  transport: ws
  retry_budget: 1m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WIRERELAY_SERVER_PORT", "9100")
	t.Setenv("WIRERELAY_CLIENT_IDENTIFIER", "alice")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("env should override file: port = %d", cfg.Server.Port)
	}
	if cfg.Server.HTTPAddr != ":8080" || cfg.Server.WriteTimeout != 3*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default host lost: %q", cfg.Server.Host)
	}
	if cfg.Client.Transport != TransportWS || cfg.Client.RetryBudget != time.Minute || cfg.Client.Identifier != "alice" {
		t.Errorf("client values = %+v", cfg.Client)
	}
}

func TestLoadDefaultPathFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	t.Setenv(envConfigDefaultPath, dir)

	_, resolved, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != filepath.Join(dir, defaultConfigName) {
		t.Fatalf("resolved = %q", resolved)
	}
}

func TestUpdateFrom(t *testing.T) {
	s := Default().Server
	s.UpdateFrom(ServerConfig{Port: 2000})
	if s.Host != "127.0.0.1" || s.Port != 2000 {
		t.Fatalf("server after update: %s", s.Addr())
	}

	c := Default().Client
	c.UpdateFrom(ClientConfig{Host: "10.0.0.1", Identifier: "u1"})
	if c.Addr() != "10.0.0.1:11111" || c.Identifier != "u1" {
		t.Fatalf("client after update: %s %q", c.Addr(), c.Identifier)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Server.Validate(); err != nil {
		t.Fatalf("default server invalid: %v", err)
	}
	if err := cfg.Client.Validate(); err != nil {
		t.Fatalf("default client invalid: %v", err)
	}

	cfg.Server.Database.Driver = "postgres"
	cfg.Server.Port = 0
	if err := cfg.Server.Validate(); err == nil {
		t.Fatal("expected server validation error")
	}

	cfg.Client.Transport = "udp"
	cfg.Client.RetryMultiplier = 0.5
	if err := cfg.Client.Validate(); err == nil {
		t.Fatal("expected client validation error")
	}
}

func TestValidateClientLimits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"zero auth timeout", func(c *ClientConfig) { c.AuthTimeout = 0 }},
		{"negative auth timeout", func(c *ClientConfig) { c.AuthTimeout = -time.Second }},
		{"zero retry budget", func(c *ClientConfig) { c.RetryBudget = 0 }},
		{"negative connect timeout", func(c *ClientConfig) { c.ConnectTimeout = -time.Second }},
		{"negative max frame", func(c *ClientConfig) { c.MaxFrameBytes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default().Client
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	c := Default().Client
	c.MaxFrameBytes = 0
	if err := c.Validate(); err != nil {
		t.Fatalf("zero max frame should select the default: %v", err)
	}
}

func TestValidateServerLimits(t *testing.T) {
	s := Default().Server
	s.MaxFrameBytes = -1
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for negative max frame")
	}
}
