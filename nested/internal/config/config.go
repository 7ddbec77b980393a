package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValidationMode int

const (
	// ValidationInfo needs only the reader.
	ValidationInfo ValidationMode = iota
	// ValidationDiagnose needs the source block; the key file is optional.
	ValidationDiagnose
	// ValidationCheck needs the source block and key file.
	ValidationCheck
	ValidationCalibrate
	ValidationNested
	ValidationHardNested
)

type Config struct {
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Source     SourceConfig     `yaml:"source"`
	Target     TargetConfig     `yaml:"target"`
	Attack     AttackConfig     `yaml:"attack"`
	HardNested HardNestedConfig `yaml:"hardnested"`
	Simulation SimulationConfig `yaml:"simulation"`
}

type RuntimeConfig struct {
	ReaderIndex *int `yaml:"reader_index"`
}

// SourceConfig is the sector whose key is already known.
type SourceConfig struct {
	Block      *int   `yaml:"block"`
	KeyType    string `yaml:"key_type"`
	KeyHexFile string `yaml:"key_hex_file"`
}

// TargetConfig is the sector whose key is attacked.
type TargetConfig struct {
	Block   *int   `yaml:"block"`
	KeyType string `yaml:"key_type"`
}

type AttackConfig struct {
	Calibration string `yaml:"calibration"` // full, fast or info; empty means full
	Distance    *int   `yaml:"distance"`    // skips calibration when set
	DelayUS     *int   `yaml:"delay_us"`
	MaxAttempts *int   `yaml:"max_attempts"`
}

type HardNestedConfig struct {
	NonceLog         string `yaml:"nonce_log"`
	UniqueFirstBytes *int   `yaml:"unique_first_bytes"`
	MaxBatches       *int   `yaml:"max_batches"`
}

// SimulationConfig shapes the card used with -simulate.
type SimulationConfig struct {
	Distance  *int   `yaml:"distance"`
	Static    *bool  `yaml:"static"`
	Seed      string `yaml:"seed"`
	TargetKey string `yaml:"target_key"`
	UID       string `yaml:"uid"`
}

func Load(path string) (*Config, error) {
	return LoadWithMode(path, ValidationNested)
}

func LoadWithMode(path string, mode ValidationMode) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.ValidateWithMode(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return c.ValidateWithMode(ValidationNested)
}

func (c *Config) ValidateWithMode(mode ValidationMode) error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	switch mode {
	case ValidationInfo:
		return nil
	case ValidationDiagnose:
		return c.validateSourceBlock()
	case ValidationCheck:
		return c.validateSource()
	case ValidationCalibrate:
		if err := c.validateSource(); err != nil {
			return err
		}
		return c.validateAttack()
	case ValidationNested:
		if err := c.validateSource(); err != nil {
			return err
		}
		if err := c.validateTarget(); err != nil {
			return err
		}
		return c.validateAttack()
	case ValidationHardNested:
		if err := c.validateSource(); err != nil {
			return err
		}
		if err := c.validateTarget(); err != nil {
			return err
		}
		return c.validateHardNested()
	default:
		return fmt.Errorf("unsupported validation mode: %d", mode)
	}
}

func (c *Config) validateCommon() error {
	if c.Runtime.ReaderIndex == nil {
		return fmt.Errorf("config.runtime.reader_index is required")
	}
	if *c.Runtime.ReaderIndex < 0 {
		return fmt.Errorf("config.runtime.reader_index must be >= 0")
	}
	return c.validateSimulation()
}

func (c *Config) validateSourceBlock() error {
	if err := validateBlock(c.Source.Block, "config.source.block"); err != nil {
		return err
	}
	return validateKeyType(c.Source.KeyType, "config.source.key_type")
}

func (c *Config) validateSource() error {
	if err := c.validateSourceBlock(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Source.KeyHexFile) == "" {
		return fmt.Errorf("config.source.key_hex_file is required")
	}
	return validateReadableFile(c.Source.KeyHexFile, "config.source.key_hex_file")
}

func (c *Config) validateTarget() error {
	if err := validateBlock(c.Target.Block, "config.target.block"); err != nil {
		return err
	}
	return validateKeyType(c.Target.KeyType, "config.target.key_type")
}

func (c *Config) validateAttack() error {
	switch strings.ToLower(strings.TrimSpace(c.Attack.Calibration)) {
	case "", "full", "fast", "info":
	default:
		return fmt.Errorf("config.attack.calibration must be full, fast or info")
	}
	if c.Attack.Distance != nil && (*c.Attack.Distance < 1 || *c.Attack.Distance >= 65535) {
		return fmt.Errorf("config.attack.distance must be 1..65534")
	}
	if c.Attack.DelayUS != nil && (*c.Attack.DelayUS < 0 || *c.Attack.DelayUS > 1000000) {
		return fmt.Errorf("config.attack.delay_us must be 0..1000000")
	}
	if c.Attack.MaxAttempts != nil && *c.Attack.MaxAttempts < 1 {
		return fmt.Errorf("config.attack.max_attempts must be >= 1")
	}
	return nil
}

func (c *Config) validateHardNested() error {
	if strings.TrimSpace(c.HardNested.NonceLog) == "" {
		return fmt.Errorf("config.hardnested.nonce_log is required")
	}
	if dir := filepath.Dir(c.HardNested.NonceLog); dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("config.hardnested.nonce_log: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("config.hardnested.nonce_log parent must be a directory")
		}
	}
	if n := c.HardNested.UniqueFirstBytes; n != nil && (*n < 1 || *n > 256) {
		return fmt.Errorf("config.hardnested.unique_first_bytes must be 1..256")
	}
	if n := c.HardNested.MaxBatches; n != nil && *n < 1 {
		return fmt.Errorf("config.hardnested.max_batches must be >= 1")
	}
	return nil
}

func (c *Config) validateSimulation() error {
	if d := c.Simulation.Distance; d != nil && (*d < 1 || *d >= 65535) {
		return fmt.Errorf("config.simulation.distance must be 1..65534")
	}
	if s := strings.TrimSpace(c.Simulation.Seed); s != "" {
		if _, err := strconv.ParseUint(s, 16, 32); err != nil {
			return fmt.Errorf("config.simulation.seed must be 8 hex chars: %w", err)
		}
	}
	if k := strings.TrimSpace(c.Simulation.TargetKey); k != "" && len(k) != 12 {
		return fmt.Errorf("config.simulation.target_key must be 12 hex chars")
	}
	if u := strings.TrimSpace(c.Simulation.UID); u != "" && len(u) != 8 && len(u) != 14 {
		return fmt.Errorf("config.simulation.uid must be 8 or 14 hex chars")
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Source.KeyHexFile = resolvePath(configDir, c.Source.KeyHexFile)
	c.HardNested.NonceLog = resolvePath(configDir, c.HardNested.NonceLog)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateBlock(block *int, field string) error {
	if block == nil {
		return fmt.Errorf("%s is required", field)
	}
	if *block < 0 || *block > 255 {
		return fmt.Errorf("%s must be 0..255", field)
	}
	return nil
}

func validateKeyType(kt, field string) error {
	switch strings.ToUpper(strings.TrimSpace(kt)) {
	case "A", "B":
		return nil
	case "":
		return fmt.Errorf("%s is required", field)
	}
	return fmt.Errorf("%s must be A or B", field)
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
