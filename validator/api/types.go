package api

import "time"

// QueryResponse wraps every successful /api/v1 answer.
type QueryResponse struct {
	Data interface{} `json:"data"`
	// Step is the round the data reflects, omitted for data not tied to a round.
	Step      uint64    `json:"step,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
