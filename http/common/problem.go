package common

import (
	"fmt"
	"strconv"
	"strings"
)

// ProblemType determines if a problem is HTTP or engine related.
type ProblemType int

const (
	ProblemHttpMediaType ProblemType = iota + 1
	ProblemHttpRequestBody
	ProblemHttpRequestUri

	// engine error types
	ProblemConflict
	ProblemNotFound
	ProblemQuery
	ProblemUnauthorized
	ProblemValidation
)

var problemTypeNames = [...]string{
	ProblemHttpMediaType:   "HTTP_MEDIA_TYPE",
	ProblemHttpRequestBody: "HTTP_REQUEST_BODY",
	ProblemHttpRequestUri:  "HTTP_REQUEST_URI",
	ProblemConflict:        "CONFLICT",
	ProblemNotFound:        "NOT_FOUND",
	ProblemQuery:           "QUERY",
	ProblemUnauthorized:    "UNAUTHORIZED",
	ProblemValidation:      "VALIDATION",
}

// MapProblemType maps the name of a problem type. An unknown name results in 0.
func MapProblemType(s string) ProblemType {
	for i, name := range problemTypeNames {
		if i != 0 && name == s {
			return ProblemType(i)
		}
	}
	return 0
}

func (v ProblemType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(v.String())), nil
}

func (v ProblemType) String() string {
	if v > 0 && int(v) < len(problemTypeNames) {
		return problemTypeNames[v]
	}
	return "UNKNOWN"
}

func (v *ProblemType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 {
		return fmt.Errorf("invalid problem type data %s", s)
	}
	*v = MapProblemType(s[1 : len(s)-1])
	return nil
}

// Common format for HTTP 4xx error responses, based on https://datatracker.ietf.org/doc/html/rfc9457.
type Problem struct {
	Status int         `json:"status" validate:"required"` // HTTP status code.
	Type   ProblemType `json:"type" validate:"required"`   // Problem type.
	Title  string      `json:"title" validate:"required"`  // Human-readable problem summary.
	Detail string      `json:"detail" validate:"required"` // Human-readable, detailed information about the problem.
	Errors []Error     `json:"errors,omitempty"`           // Validation errors.
}

func (v Problem) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("HTTP %d: %s: %s: %s", v.Status, v.Type, v.Title, v.Detail))

	for i := range v.Errors {
		sb.WriteRune('\n')
		sb.WriteString(v.Errors[i].String())
	}

	return sb.String()
}

// Error represents a failed validation, pointing on a JSON property.
type Error struct {
	// A pointer, locating the invalid JSON property.
	Pointer string `json:"pointer" validate:"required"`
	// Error type.
	//
	// JSON property related values:
	//   - `gte`: value must be greater than or equal to
	//   - `lte`: value must be less than or equal to
	//   - `required`: value is required
	//   - `required_without`: value is required, when another property is not set
	//   - `topic_name`: value is not a valid topic name
	Type string `json:"type" validate:"required"`
	// Human-readable, detailed information about the error.
	Detail string `json:"detail" validate:"required"`
	// Value or key that caused the validation error.
	Value string `json:"value,omitempty"`
}

func (v Error) String() string {
	return fmt.Sprintf("%s: %s", v.Pointer, v.Detail)
}
