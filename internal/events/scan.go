package events

import "time"

// ScanStart is emitted before a response payload is scanned for a query.
type ScanStart struct {
	Query    string
	NodeCost int
}

// ScanFinish is emitted after a scan pass completes, successfully or not.
type ScanFinish struct {
	Query         string
	Nodes         int
	Continuations int
	Err           error
	Duration      time.Duration
}

// RateLimit is emitted when a response carries a rateLimit block.
type RateLimit struct {
	Query     string
	Limit     int
	Cost      int
	Remaining int
	NodeCount int
	ResetAt   string
}
