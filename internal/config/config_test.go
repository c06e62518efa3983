package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Address != "127.0.0.1:3000" {
		t.Errorf("expected default address 127.0.0.1:3000, got %s", cfg.Server.Address)
	}
	if cfg.Pool.Size != 60 {
		t.Errorf("expected pool size 60, got %d", cfg.Pool.Size)
	}
	if cfg.Pool.Socket == "" {
		t.Error("expected default pool socket to be set")
	}
	if cfg.Pool.RequestTimeout.Duration() != 30*time.Second {
		t.Errorf("expected request_timeout 30s, got %s", cfg.Pool.RequestTimeout.Duration())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadValidConfig(t *testing.T) {
	yaml := `
server:
  address: "0.0.0.0:9090"
pool:
  socket: "/run/dispatchd/pool.sock"
  interpreter: "/usr/bin/php"
  script: "worker.php"
  size: 6
  request_timeout: "15s"
logging:
  level: "debug"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatchd.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Address != "0.0.0.0:9090" {
		t.Errorf("expected address 0.0.0.0:9090, got %s", cfg.Server.Address)
	}
	if cfg.Pool.Interpreter != "/usr/bin/php" {
		t.Errorf("expected interpreter /usr/bin/php, got %s", cfg.Pool.Interpreter)
	}
	if cfg.Pool.Script != "worker.php" {
		t.Errorf("expected script worker.php, got %s", cfg.Pool.Script)
	}
	if cfg.Pool.Size != 6 {
		t.Errorf("expected pool size 6, got %d", cfg.Pool.Size)
	}
	if cfg.Pool.RequestTimeout.Duration() != 15*time.Second {
		t.Errorf("expected request_timeout 15s, got %s", cfg.Pool.RequestTimeout.Duration())
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/dispatchd.yaml")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestValidatePoolSizeZero(t *testing.T) {
	cfg := Default()
	cfg.Pool.Size = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for pool.size=0")
	}
}

func TestValidateMissingSocket(t *testing.T) {
	cfg := Default()
	cfg.Pool.Socket = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing pool.socket")
	}
}

func TestValidateMissingInterpreter(t *testing.T) {
	cfg := Default()
	cfg.Pool.Interpreter = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing pool.interpreter")
	}
}

func TestValidateMissingAddress(t *testing.T) {
	cfg := Default()
	cfg.Server.Address = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing server.address")
	}
}

func TestValidateAdminRequiresPath(t *testing.T) {
	cfg := Default()
	cfg.Admin.Enabled = true
	cfg.Admin.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for enabled admin without path")
	}
}
