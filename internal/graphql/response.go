// Package graphql defines the GraphQL response envelope used for
// gateway-produced responses.
package graphql

import "encoding/json"

// Response is a GraphQL response envelope.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []Error         `json:"errors,omitempty"`
}

// Error is a single entry of the GraphQL errors array.
type Error struct {
	Message string `json:"message"`
}

// NewErrorResponse returns a response carrying a single error message.
func NewErrorResponse(message string) *Response {
	return &Response{
		Errors: []Error{{Message: message}},
	}
}

// Bytes serializes the response to JSON. Serialization of this envelope
// cannot fail; an empty object is returned on the impossible path.
func (r *Response) Bytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return []byte("{}")
	}
	return data
}
