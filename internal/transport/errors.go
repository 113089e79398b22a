package transport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoEndpoint is returned when the client has no endpoint configured.
var ErrNoEndpoint = errors.New("transport: no endpoint configured")

// StatusError reports a non-2xx HTTP answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: unexpected status %d: %s", e.StatusCode, e.Body)
}

// ResponseError carries GraphQL errors returned without any data.
type ResponseError struct {
	Messages []string
}

func (e *ResponseError) Error() string {
	return "transport: graphql errors: " + strings.Join(e.Messages, "; ")
}
