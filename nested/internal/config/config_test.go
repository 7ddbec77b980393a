package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadValidFullConfigAndResolveRelativePaths(t *testing.T) {
	tmp := t.TempDir()
	keyPath := filepath.Join(tmp, "source.hex")
	if err := os.WriteFile(keyPath, []byte("FFFFFFFFFFFF\n"), 0o644); err != nil {
		t.Fatalf("write source key: %v", err)
	}

	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
runtime:
  reader_index: 0
source:
  block: 0
  key_type: A
  key_hex_file: "source.hex"
target:
  block: 4
  key_type: B
attack:
  calibration: fast
  delay_us: 0
  max_attempts: 64
hardnested:
  nonce_log: "nonces.log"
  unique_first_bytes: 256
  max_batches: 100
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWithMode(cfgPath, ValidationHardNested)
	if err != nil {
		t.Fatalf("LoadWithMode returned error: %v", err)
	}
	if cfg.Source.KeyHexFile != keyPath {
		t.Fatalf("expected resolved key path %q, got %q", keyPath, cfg.Source.KeyHexFile)
	}
	if want := filepath.Join(tmp, "nonces.log"); cfg.HardNested.NonceLog != want {
		t.Fatalf("expected resolved nonce log %q, got %q", want, cfg.HardNested.NonceLog)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestLoadWithModeInfoAllowsMinimalConfig(t *testing.T) {
	cfgPath := writeConfig(t, `
runtime:
  reader_index: 1
`)

	cfg, err := LoadWithMode(cfgPath, ValidationInfo)
	if err != nil {
		t.Fatalf("LoadWithMode returned error: %v", err)
	}
	if *cfg.Runtime.ReaderIndex != 1 {
		t.Fatalf("expected reader index 1, got %d", *cfg.Runtime.ReaderIndex)
	}
}

func TestLoadWithModeDiagnoseDoesNotNeedKeyFile(t *testing.T) {
	cfgPath := writeConfig(t, `
runtime:
  reader_index: 0
source:
  block: 3
  key_type: b
`)

	if _, err := LoadWithMode(cfgPath, ValidationDiagnose); err != nil {
		t.Fatalf("LoadWithMode returned error: %v", err)
	}
	_, err := LoadWithMode(cfgPath, ValidationCheck)
	if err == nil || !strings.Contains(err.Error(), "config.source.key_hex_file is required") {
		t.Fatalf("expected missing key file error, got %v", err)
	}
}

func TestLoadFailsWithoutReaderIndex(t *testing.T) {
	cfgPath := writeConfig(t, `
source:
  block: 0
  key_type: A
`)

	_, err := LoadWithMode(cfgPath, ValidationInfo)
	if err == nil || !strings.Contains(err.Error(), "config.runtime.reader_index is required") {
		t.Fatalf("expected missing reader index error, got %v", err)
	}
}

func TestLoadNestedFailsWithoutTarget(t *testing.T) {
	cfgPath := writeConfigWithKey(t, `
runtime:
  reader_index: 0
source:
  block: 0
  key_type: A
  key_hex_file: "KEY"
`, "KEY")

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "config.target.block is required") {
		t.Fatalf("expected missing target error, got %v", err)
	}
}

func TestLoadFailsOnInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		section string
		want    string
	}{
		{"block range", "target:\n  block: 256\n  key_type: A\n", "config.target.block must be 0..255"},
		{"key type", "target:\n  block: 4\n  key_type: C\n", "config.target.key_type must be A or B"},
		{"calibration", "target:\n  block: 4\n  key_type: A\nattack:\n  calibration: slow\n", "config.attack.calibration"},
		{"distance", "target:\n  block: 4\n  key_type: A\nattack:\n  distance: 70000\n", "config.attack.distance"},
		{"attempts", "target:\n  block: 4\n  key_type: A\nattack:\n  max_attempts: 0\n", "config.attack.max_attempts"},
		{"seed", "target:\n  block: 4\n  key_type: A\nsimulation:\n  seed: XYZ\n", "config.simulation.seed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfgPath := writeConfigWithKey(t, `
runtime:
  reader_index: 0
source:
  block: 0
  key_type: A
  key_hex_file: "KEY"
`+tc.section, "KEY")

			_, err := Load(cfgPath)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadHardNestedRequiresNonceLog(t *testing.T) {
	cfgPath := writeConfigWithKey(t, `
runtime:
  reader_index: 0
source:
  block: 0
  key_type: A
  key_hex_file: "KEY"
target:
  block: 4
  key_type: B
`, "KEY")

	_, err := LoadWithMode(cfgPath, ValidationHardNested)
	if err == nil || !strings.Contains(err.Error(), "config.hardnested.nonce_log is required") {
		t.Fatalf("expected missing nonce log error, got %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	cfgPath := writeConfig(t, `
runtime:
  reader_index: 0
  settings_only: true
`)

	_, err := LoadWithMode(cfgPath, ValidationInfo)
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadFailsWhenKeyPathIsDirectory(t *testing.T) {
	tmp := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmp, "keys"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
runtime:
  reader_index: 0
source:
  block: 0
  key_type: A
  key_hex_file: "keys"
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadWithMode(cfgPath, ValidationCheck)
	if err == nil || !strings.Contains(err.Error(), "must point to a file") {
		t.Fatalf("expected directory error, got %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func writeConfigWithKey(t *testing.T, content string, keyFile string) string {
	t.Helper()
	cfgPath := writeConfig(t, content)
	keyPath := filepath.Join(filepath.Dir(cfgPath), keyFile)
	if err := os.WriteFile(keyPath, []byte("FFFFFFFFFFFF\n"), 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return cfgPath
}
