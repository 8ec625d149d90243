// Package feeders provides file feeders that populate Go structures from
// configuration and catalog definition files. Each feeder handles one
// file format; callers pick a feeder by file extension.
package feeders

// Feeder populates a target structure from an external source.
type Feeder interface {
	// Feed unmarshals the feeder's source into the given structure
	// pointer.
	Feed(structure interface{}) error
}
