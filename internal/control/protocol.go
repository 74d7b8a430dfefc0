// Package control implements the local control channel: one JSON request
// document per Unix-socket connection, answered by one JSON response.
// Both the host daemon and the desktop agent expose a control server, and
// each side calls the other as a client.
package control

import "encoding/json"

// Request is the wire form of a control command. Requests are stateless;
// each one stands alone on its own connection.
type Request struct {
	// Command names the operation, e.g. "getstatus" or "sendnotification".
	Command string `json:"command"`

	// Parameters carries command-specific string parameters.
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Response is the wire form of a command result.
type Response struct {
	Success bool `json:"success"`

	// Error is set when Success is false.
	Error string `json:"error,omitempty"`

	// Data carries the command-specific result document.
	Data json.RawMessage `json:"data,omitempty"`
}

// NewRequest builds a request with optional parameters.
func NewRequest(command string, parameters map[string]string) *Request {
	return &Request{Command: command, Parameters: parameters}
}

// OK builds a success response with an optional data document.
func OK(data any) (*Response, error) {
	if data == nil {
		return &Response{Success: true}, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Response{Success: true, Data: raw}, nil
}

// Fail builds a failure response from an error.
func Fail(err error) *Response {
	return &Response{Success: false, Error: err.Error()}
}
