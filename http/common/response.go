package common

import "github.com/gclaussn/go-extask/engine"

// Response of a batch operation like the unlocking of external tasks.
type CountRes struct {
	Count int `json:"count" validate:"required,gte=0"` // The number of affected entities.
}

// query responses

// Response of an external task query.
type ExternalTaskRes struct {
	Count   int                   `json:"count" validate:"required,gte=0"` // Number of results.
	Results []engine.ExternalTask `json:"results" validate:"required"`     // Query results.
}
