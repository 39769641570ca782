package address

import (
	"errors"
	"fmt"
)

// Sentinel errors for address parsing.
var (
	// ErrInvalidPattern is returned when a pattern fails to parse.
	ErrInvalidPattern = errors.New("invalid address pattern")

	// ErrInvalidAddress is returned when a concrete address fails to parse.
	ErrInvalidAddress = errors.New("invalid address")
)

// PatternError describes why and where a pattern failed to parse.
type PatternError struct {
	// Pattern is the source text that was parsed.
	Pattern string

	// Offset is the byte offset of the offending character.
	Offset int

	// Reason is a human-readable description of the problem.
	Reason string
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid address pattern %q: %s at offset %d", e.Pattern, e.Reason, e.Offset)
}

// Is allows errors.Is to match PatternError with ErrInvalidPattern.
func (e *PatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// AddressError describes why a concrete address was rejected.
type AddressError struct {
	// Address is the rejected text.
	Address string

	// Offset is the byte offset of the offending character.
	Offset int

	// Reason is a human-readable description of the problem.
	Reason string
}

// Error implements the error interface.
func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s at offset %d", e.Address, e.Reason, e.Offset)
}

// Is allows errors.Is to match AddressError with ErrInvalidAddress.
func (e *AddressError) Is(target error) bool {
	return target == ErrInvalidAddress
}
