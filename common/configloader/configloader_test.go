// common/configloader/configloader_test.go
package configloader_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Muritor08/TB-WSS/common/configloader"
)

type testConfig struct {
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
	Debug   bool          `mapstructure:"debug"`
	HTTP    struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"http"`
}

func (c *testConfig) Validate() error { return nil }

func TestLoad_DefaultsEnvFile(t *testing.T) {
	configloader.RegisterDefaultsMap(map[string]interface{}{
		"name":      "default",
		"timeout":   "5s",
		"debug":     false,
		"http.port": 8080,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("name: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLTEST_HTTP_PORT", "9090")
	t.Setenv("CLTEST_DEBUG", "true")

	var cfg testConfig
	if err := configloader.Load(path, "CLTEST", &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-file" {
		t.Errorf("Name = %q, want from-file", cfg.Name)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if !cfg.Debug {
		t.Error("Debug should be overridden by env")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := configloader.Load("/nonexistent/cfg.yaml", "CLTEST", &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPrintConfig(t *testing.T) {
	var sb strings.Builder
	if err := configloader.PrintConfig(&sb, map[string]int{"port": 1}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "port: 1") {
		t.Errorf("unexpected output: %q", sb.String())
	}
}
