package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a feeder for the given TOML file.
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed reads the TOML file and unmarshals it into the target structure.
func (f TomlFeeder) Feed(structure interface{}) error {
	if _, err := toml.DecodeFile(f.Path, structure); err != nil {
		return fmt.Errorf("failed to decode toml: %w", err)
	}
	return nil
}
