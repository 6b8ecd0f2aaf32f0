package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse is wrapped by a TransportError when a 2xx body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed gateway response")

// TransportError reports that the request never produced a usable HTTP
// response (connection refused, DNS failure, aborted body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// GatewayError reports a non-2xx response. Detail holds the body's
// "detail" field when it was present and a string.
type GatewayError struct {
	Op     string
	Status int
	Detail string
}

func (e *GatewayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("gateway %s: status %d", e.Op, e.Status)
}

// Message converts a gateway failure into the text shown to the user.
// A GatewayError with a detail shows it verbatim; other gateway errors show
// failed, and transport errors (or anything else) show transport.
func Message(err error, failed, transport string) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.Detail != "" {
			return gwErr.Detail
		}
		return failed
	}
	return transport
}

// parseDetail extracts a string "detail" field from an error body.
func parseDetail(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	raw, ok := payload["detail"]
	if !ok {
		return ""
	}
	var detail string
	if err := json.Unmarshal(raw, &detail); err != nil {
		return ""
	}
	return detail
}
