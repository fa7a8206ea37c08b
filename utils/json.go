package utils

import (
	"encoding/json"
)

// RawJSON marshals input for event payloads; nil input or a marshal failure yields nil.
func RawJSON(input any) json.RawMessage {
	if input == nil {
		return nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	return b
}
