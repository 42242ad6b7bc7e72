package core

import (
	"encoding/json"
	"fmt"
)

// JSONEncode encodes a value to JSON bytes (fail-fast on nil).
func JSONEncode(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, &Error{Code: CodeInvalidInput, Message: "cannot encode nil value"}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode failed: %w", err)
	}
	return data, nil
}

// JSONDecode decodes JSON bytes into v (fail-fast on empty data or nil target).
func JSONDecode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return &Error{Code: CodeInvalidInput, Message: "cannot decode empty data"}
	}
	if v == nil {
		return &Error{Code: CodeInvalidInput, Message: "cannot decode into nil value"}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json decode failed: %w", err)
	}
	return nil
}

// Codec converts channel items to and from bytes when they cross a process
// boundary.
type Codec interface {
	Encode(item any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// JSONCodec encodes items as JSON and decodes them back into a T.
// Decoded items are values of type T, not pointers.
type JSONCodec[T any] struct{}

// Encode implements Codec
func (JSONCodec[T]) Encode(item any) ([]byte, error) {
	if _, ok := item.(T); !ok {
		var zero T
		return nil, &Error{Code: CodeInvalidInput, Message: fmt.Sprintf("codec expects %T, got %T", zero, item)}
	}
	return JSONEncode(item)
}

// Decode implements Codec
func (JSONCodec[T]) Decode(data []byte) (any, error) {
	var v T
	if err := JSONDecode(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
