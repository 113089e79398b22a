package query

import "errors"

// ErrAlreadyParsed is returned by a PerNodeFunc to stop scanning the current
// list or page. It is absorbed by the scan and never returned to callers of
// ProcessResponse.
var ErrAlreadyParsed = errors.New("node already parsed in previous sync")

// APIError reports a response that does not have the shape the query expects.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "API error: " + e.Message
}

func swallowAlreadyParsed(err error) error {
	if errors.Is(err, ErrAlreadyParsed) {
		return nil
	}
	return err
}
