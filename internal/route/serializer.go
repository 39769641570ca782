package route

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackSerializer serializes values with MessagePack.
type MsgpackSerializer struct{}

// Marshal implements Serializer.
func (MsgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal implements Serializer.
func (MsgpackSerializer) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// RawSerializer passes []byte and string values through unchanged and
// rejects everything else.
type RawSerializer struct{}

// Marshal implements Serializer.
func (RawSerializer) Marshal(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case nil:
		return nil, nil
	default:
		return nil, &unsupportedTypeError{v: v}
	}
}

// Unmarshal implements Serializer.
func (RawSerializer) Unmarshal(data []byte, v any) error {
	switch x := v.(type) {
	case *[]byte:
		*x = append((*x)[:0], data...)
	case *string:
		*x = string(data)
	default:
		return &unsupportedTypeError{v: v}
	}
	return nil
}

type unsupportedTypeError struct {
	v any
}

func (e *unsupportedTypeError) Error() string {
	return fmt.Sprintf("raw serializer: unsupported type %T", e.v)
}
