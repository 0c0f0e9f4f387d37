package sheetness

import "fmt"

// ConfigError reports a configuration problem detected eagerly, before
// any heavy computation runs. It is fatal to the run.
type ConfigError struct {
	// Stage names the pipeline stage that rejected the configuration.
	Stage string

	// Reason describes what was wrong.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sheetness: %s: invalid configuration: %s", e.Stage, e.Reason)
}

// ResourceError reports that a stage could not allocate or address its
// working buffers. It is fatal to the run and carries the stage name
// so the caller knows where the pipeline stopped.
type ResourceError struct {
	Stage string
	Err   error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("sheetness: %s: %v", e.Stage, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
