package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the configuration of the keymapstat tool
type Config struct {
	Environment string `default:"development"`

	// Input is the file holding one key per line; "-" reads standard input
	Input string `default:"-"`

	// Remove optionally names a file of keys to remove after loading
	Remove string

	Capacity int `default:"32"`

	// MemoryLimit caps the slot array in bytes; 0 disables the limit
	MemoryLimit uint64 `split_words:"true"`
}

// IsEnvProduction returns whether the tool runs in production mode
func (config *Config) IsEnvProduction() bool {
	return config.Environment == "production"
}

// LoadFromEnv loads a new configuration structure using environment variables and an optional .env file
func LoadFromEnv() (*Config, error) {
	// Load a .env file if it exists
	_ = godotenv.Overload()

	// Load a new configuration structure using environment variables
	config := new(Config)
	if err := envconfig.Process("keymap", config); err != nil {
		return nil, err
	}
	return config, nil
}
