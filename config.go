package searchaccel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/search-accel/search-accel/policy"
	"github.com/search-accel/search-accel/store"
)

// FileConfig is the YAML deployment configuration. CLI flags override the
// origin and listen address; everything tier- and rule-shaped lives here.
type FileConfig struct {
	// Origin is the search backend endpoint URL.
	Origin string `yaml:"origin"`
	// Port to listen on.
	Port int `yaml:"port"`
	// Store selects and configures the cache backend.
	Store store.Config `yaml:"store"`
	// TTL is the tier table for the TTL policy.
	TTL policy.TTLConfig `yaml:"ttl"`
	// TrackerCapacity bounds the popularity map.
	TrackerCapacity int `yaml:"trackerCapacity"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("parsing config %s: %w", filename, err)
	}
	return config, nil
}
