package dispatch

import "fmt"

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Address string
	Value   any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("callback for %s panicked: %v", e.Address, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
