package artifact

import "errors"

var (
	// ErrUnsupportedSchema is returned for artifacts written with a schema
	// version this build does not read.
	ErrUnsupportedSchema = errors.New("unsupported artifact schema version")
	// ErrCorrupt is returned when an artifact fails its checksum or decoding.
	ErrCorrupt = errors.New("corrupt artifact")
)
