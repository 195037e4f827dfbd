package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name  string        `yaml:"name"`
	Delay time.Duration `yaml:"delay"`
	Port  int           `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("WELLBEING_TEST_NAME", "from-env")
	p := writeFile(t, "name: ${WELLBEING_TEST_NAME}\ndelay: 1500ms\n")

	cfg := sample{Port: 8080}
	if err := Load(p, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Delay != 1500*time.Millisecond {
		t.Errorf("delay = %v", cfg.Delay)
	}
	if cfg.Port != 8080 {
		t.Errorf("port default lost: %d", cfg.Port)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	p := writeFile(t, "port: 0\n")
	cfg := sample{Port: 1}
	err := Load(p, &cfg)
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := writeFile(t, "port: [unterminated\n")
	cfg := sample{Port: 1}
	if err := Load(p, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadOptional(t *testing.T) {
	cfg := sample{Port: 9000}
	loaded, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	if err != nil || loaded {
		t.Fatalf("missing file: loaded=%v err=%v", loaded, err)
	}

	bad := sample{}
	if _, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &bad); err == nil {
		t.Fatal("defaults should still be validated")
	}

	p := writeFile(t, "port: 7000\n")
	loaded, err = LoadOptional(p, &cfg)
	if err != nil || !loaded || cfg.Port != 7000 {
		t.Fatalf("present file: loaded=%v err=%v port=%d", loaded, err, cfg.Port)
	}
}
