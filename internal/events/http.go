package events

import (
	"time"
)

// HTTPStart is emitted before a query is posted to the endpoint.
type HTTPStart struct {
	Query    string
	Endpoint string
	Attempt  int
}

// HTTPFinish is emitted after the endpoint answered or the attempt failed.
type HTTPFinish struct {
	Query    string
	Endpoint string
	Attempt  int
	Status   int
	Err      error
	Duration time.Duration
}
