package extract

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/goopsie/glacierFileTools/pkg/rpkg"
	"github.com/goopsie/glacierFileTools/pkg/texture"
)

// Config is the file configuration of a batch extraction run.
type Config struct {
	// Workers is the number of resources materialized at once.
	// Defaults to GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Types restricts the run to these type tags ("TEXT", "TEMP", ...).
	// Empty means every type.
	Types []string `yaml:"types"`

	// DecodeTextures parses texture headers and decodes TEXT and TEXD
	// resources to RGBA.
	DecodeTextures bool `yaml:"decode_textures"`

	// TextureVersion selects the texture header layout: H2016, H2 or H3.
	// Defaults to H3.
	TextureVersion string `yaml:"texture_version"`

	// HashList is an optional hash list file (plain, gzip or snapshot)
	// used to name resources in the report.
	HashList string `yaml:"hash_list"`

	// MemoryBudget bounds the decoded bytes held by in-flight resources.
	// Zero means unbounded.
	MemoryBudget int64 `yaml:"memory_budget"`
}

// LoadConfig loads a configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.TextureVersion == "" {
		c.TextureVersion = texture.H3.String()
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.MemoryBudget < 0 {
		return fmt.Errorf("memory_budget must not be negative")
	}
	if _, err := c.typeFilter(); err != nil {
		return err
	}
	if c.TextureVersion != "" {
		if _, err := texture.ParseVersion(c.TextureVersion); err != nil {
			return fmt.Errorf("texture_version: %w", err)
		}
	}
	return nil
}

func (c *Config) typeFilter() (map[rpkg.TypeTag]bool, error) {
	if len(c.Types) == 0 {
		return nil, nil
	}
	allowed := make(map[rpkg.TypeTag]bool, len(c.Types))
	for _, s := range c.Types {
		t, err := rpkg.ParseTypeTag(s)
		if err != nil {
			return nil, fmt.Errorf("types: %w", err)
		}
		allowed[t] = true
	}
	return allowed, nil
}
