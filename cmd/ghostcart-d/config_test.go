package main

import (
	"strings"
	"testing"
	"time"
)

func setKeys(t *testing.T) {
	t.Helper()
	t.Setenv("GHOSTCART_USER_KEY", "user-secret")
	t.Setenv("GHOSTCART_AGENT_KEY", "agent-secret")
	t.Setenv("GHOSTCART_ENGINE_KEY", "engine-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setKeys(t)

	config, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Addr != defaultAddr {
		t.Errorf("addr %s, want %s", config.Addr, defaultAddr)
	}
	if config.CheckInterval != defaultCheckInterval {
		t.Errorf("interval %s, want %s", config.CheckInterval, defaultCheckInterval)
	}
	if config.Workers != defaultWorkers {
		t.Errorf("workers %d, want %d", config.Workers, defaultWorkers)
	}
	if !strings.HasSuffix(config.DBPath, "ghostcart.db") {
		t.Errorf("unexpected db path %s", config.DBPath)
	}
	if config.RedisAddr != "" {
		t.Errorf("redis enabled by default: %s", config.RedisAddr)
	}
}

func TestLoadConfigMissingKeys(t *testing.T) {
	t.Setenv("GHOSTCART_USER_KEY", "user-secret")
	t.Setenv("GHOSTCART_AGENT_KEY", "")
	t.Setenv("GHOSTCART_ENGINE_KEY", "engine-secret")

	_, err := LoadConfig(nil)
	if err == nil {
		t.Fatal("missing agent key accepted")
	}
	if !strings.Contains(err.Error(), "GHOSTCART_AGENT_KEY") {
		t.Errorf("error does not name the missing key: %v", err)
	}
}

func TestLoadConfigFlagOverridesEnv(t *testing.T) {
	setKeys(t)
	t.Setenv("GHOSTCART_DB_PATH", "/var/lib/ghostcart/env.db")
	t.Setenv("GHOSTCART_CHECK_INTERVAL", "1m")

	config, err := LoadConfig([]string{"-db", "/tmp/flag.db", "-check-interval", "15s", "-workers", "8"})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.DBPath != "/tmp/flag.db" {
		t.Errorf("db path %s, want /tmp/flag.db", config.DBPath)
	}
	if config.CheckInterval != 15*time.Second {
		t.Errorf("interval %s, want 15s", config.CheckInterval)
	}
	if config.Workers != 8 {
		t.Errorf("workers %d, want 8", config.Workers)
	}
}

func TestLoadConfigEnvApplies(t *testing.T) {
	setKeys(t)
	t.Setenv("GHOSTCART_CHECK_INTERVAL", "2m")
	t.Setenv("GHOSTCART_PORT", "9100")
	t.Setenv("GHOSTCART_REDIS_ADDR", "127.0.0.1:6379")

	config, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.CheckInterval != 2*time.Minute {
		t.Errorf("interval %s, want 2m", config.CheckInterval)
	}
	if config.Addr != "127.0.0.1:9100" {
		t.Errorf("addr %s, want 127.0.0.1:9100", config.Addr)
	}
	if config.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("redis addr %s", config.RedisAddr)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	setKeys(t)

	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		errorSubstr string
	}{
		{
			name:        "invalid interval from flag",
			args:        []string{"-check-interval", "soon"},
			errorSubstr: "invalid check interval",
		},
		{
			name:        "zero interval",
			args:        []string{"-check-interval", "0s"},
			errorSubstr: "check interval must be positive",
		},
		{
			name:        "invalid interval from env",
			envVars:     map[string]string{"GHOSTCART_CHECK_INTERVAL": "whenever"},
			errorSubstr: "invalid GHOSTCART_CHECK_INTERVAL",
		},
		{
			name:        "zero workers",
			args:        []string{"-workers", "0"},
			errorSubstr: "workers must be at least 1",
		},
		{
			name:        "empty addr",
			args:        []string{"-addr", "  "},
			errorSubstr: "addr cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errorSubstr) {
				t.Errorf("error %q does not contain %q", err, tt.errorSubstr)
			}
		})
	}
}
