package feeders

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONFeeder is a feeder that reads JSON files
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a feeder for the given JSON file.
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

// Feed reads the JSON file and unmarshals it into the target structure.
func (f JSONFeeder) Feed(structure interface{}) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("failed to read json file: %w", err)
	}
	if err := json.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return nil
}
