// Package config loads the CLI tools' persistent defaults from
// ~/.udfkitrc, the way the teacher's CLI layer would reach for viper
// for any config file of its own.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Defaults holds the subset of Volume-creator/Checker/Maintenance
// flags a user might want to pin once instead of repeating on every
// invocation (spec.md §6 CLI surface table).
type Defaults struct {
	MediaType    string `mapstructure:"media_type"`
	BlockSize    int    `mapstructure:"block_size"`
	Revision     string `mapstructure:"udfrev"`
	Charset      string `mapstructure:"charset"`
	Owner        string `mapstructure:"owner"`
	Organization string `mapstructure:"organization"`
}

// Load reads ~/.udfkitrc (always parsed as YAML) if present, returning zero-valued Defaults when it does
// not exist — the CLI tools' own flag defaults take over in that case.
func Load() (Defaults, error) {
	var d Defaults

	home, err := os.UserHomeDir()
	if err != nil {
		return d, nil
	}
	path := filepath.Join(home, ".udfkitrc")
	if _, statErr := os.Stat(path); statErr != nil {
		return d, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return d, err
	}
	if err := v.Unmarshal(&d); err != nil {
		return d, err
	}
	return d, nil
}
