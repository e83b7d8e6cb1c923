package utils

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload marca un payload que no se puede decodificar. Reintentarlo no sirve.
var ErrMalformedPayload = errors.New("malformed payload")

// UnmarshalAndHandle decodifica 'data' en T y se lo pasa al handler.
func UnmarshalAndHandle[T any](data []byte, handler func(T) error) error {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("%w: unmarshal %T: %v", ErrMalformedPayload, evt, err)
	}
	return handler(evt)
}
