package script

import "errors"

// Errors for script hosting.
var (
	// ErrHostClosed is returned when operating on a closed host.
	ErrHostClosed = errors.New("script host is closed")

	// ErrStaleCallback is returned when a callback registered before a reload
	// is invoked from an older registry snapshot.
	ErrStaleCallback = errors.New("script callback is stale")
)

// ScriptError reports a failure while running a script chunk.
type ScriptError struct {
	// Name is the script file path or chunk name.
	Name string
	Err  error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return "script " + e.Name + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}
