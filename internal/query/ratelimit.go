package query

// RateLimit is the cost report requested by the metering clause.
type RateLimit struct {
	Limit     int
	Cost      int
	Remaining int
	NodeCount int
	ResetAt   string
}

// ParseRateLimit reads data.rateLimit from a decoded response.
func ParseRateLimit(payload any) (RateLimit, bool) {
	root, _ := asObject(payload)
	data, _ := asObject(root["data"])
	rl, ok := asObject(data["rateLimit"])
	if !ok {
		return RateLimit{}, false
	}
	resetAt, _ := stringAt(rl, "resetAt")
	return RateLimit{
		Limit:     intAt(rl, "limit"),
		Cost:      intAt(rl, "cost"),
		Remaining: intAt(rl, "remaining"),
		NodeCount: intAt(rl, "nodeCount"),
		ResetAt:   resetAt,
	}, true
}
