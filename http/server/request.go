package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/http/common"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	RegexpTopicName = regexp.MustCompile("^[a-zA-Z0-9_.:/-]+$")

	validate = newValidate()
)

func newValidate() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0] // e.g. `json:"workerId,omitempty"` -> workerId
	})

	validate.RegisterValidation("topic_name", func(fl validator.FieldLevel) bool {
		return RegexpTopicName.MatchString(fl.Field().String())
	})

	return validate
}

const maxRequestBodySize = 1 << 20

// decodeJSONRequestBody decodes the request body into v and validates it.
// Media type, request body or validation related errors are returned as a Problem.
func decodeJSONRequestBody(w http.ResponseWriter, r *http.Request, v any) error {
	if contentType := r.Header.Get(common.HeaderContentType); contentType != "" {
		mediaType, _, _ := strings.Cut(contentType, ";")
		if mediaType = strings.TrimSpace(mediaType); mediaType != common.ContentTypeJson {
			return common.Problem{
				Status: http.StatusUnsupportedMediaType,
				Type:   common.ProblemHttpMediaType,
				Title:  "unsupported media type",
				Detail: fmt.Sprintf("media type %s is not supported", mediaType),
			}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestBody,
			Title:  "invalid request body",
			Detail: describeDecodeError(err),
		}
	}

	err := validate.Struct(v)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	problem := common.Problem{
		Status: http.StatusBadRequest,
		Type:   common.ProblemValidation,
		Title:  "invalid request body",
		Detail: "failed to validate request body",
		Errors: make([]common.Error, len(validationErrors)),
	}
	for i, fieldError := range validationErrors {
		problem.Errors[i] = newValidationError(fieldError)
	}
	return problem
}

func describeDecodeError(err error) string {
	var (
		maxBytesError      *http.MaxBytesError
		syntaxError        *json.SyntaxError
		unmarshalTypeError *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &syntaxError):
		return fmt.Sprintf("malformed JSON at position %d", syntaxError.Offset)
	case errors.As(err, &unmarshalTypeError):
		return fmt.Sprintf("JSON field %s has an invalid value at position %d", unmarshalTypeError.Field, unmarshalTypeError.Offset)
	case errors.As(err, &maxBytesError):
		return "request body size must not exceed 1MB"
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "unexpected end of JSON"
	case errors.Is(err, io.EOF):
		return "request body is empty"
	}

	if fieldName, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return "unknown JSON field " + fieldName
	}
	return fmt.Sprintf("failed to unmarshal JSON: %v", err)
}

func newValidationError(fieldError validator.FieldError) common.Error {
	e := common.Error{
		Pointer: jsonPointer(fieldError.Namespace()),
		Type:    fieldError.Tag(),
	}

	switch fieldError.Tag() {
	case "gte":
		e.Detail = "must be greater than or equal to " + fieldError.Param()
		e.Value = fmt.Sprintf("%v", fieldError.Value())
	case "lte":
		e.Detail = "must be less than or equal to " + fieldError.Param()
		e.Value = fmt.Sprintf("%v", fieldError.Value())
	case "max":
		e.Detail = "exceeds a maximum length of " + fieldError.Param()
	case "required":
		e.Detail = "is required"
	case "required_without":
		e.Detail = fmt.Sprintf("is required, when %s is not set", fieldError.Param())
	case "topic_name":
		e.Detail = "must match regex " + RegexpTopicName.String()
		e.Value = fmt.Sprintf("%v", fieldError.Value())
	default:
		e.Detail = "unknown error"
		e.Value = fmt.Sprintf("%v", fieldError.Value())
	}

	return e
}

// jsonPointer converts a validator namespace, like "FetchAndLockCmd.topicName", into a JSON pointer, like "#/topicName".
func jsonPointer(namespace string) string {
	_, path, _ := strings.Cut(namespace, ".")

	var sb strings.Builder
	sb.WriteString("#/")
	for _, r := range path {
		switch r {
		case '.', '[':
			sb.WriteRune('/')
		case ']':
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func parseId(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		return "", common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestUri,
			Title:  "invalid path parameter id",
			Detail: fmt.Sprintf("failed to parse value '%s': %v", id, err),
		}
	}
	return id, nil
}

func parseQueryOptions(r *http.Request) (engine.QueryOptions, error) {
	limit, err := parseQueryInt(r, common.QueryLimit)
	if err != nil {
		return engine.QueryOptions{}, err
	}
	offset, err := parseQueryInt(r, common.QueryOffset)
	if err != nil {
		return engine.QueryOptions{}, err
	}

	return engine.QueryOptions{Limit: limit, Offset: offset}, nil
}

// parseQueryInt parses a non-negative integer query parameter. A missing parameter results in 0.
func parseQueryInt(r *http.Request, name string) (int, error) {
	values, ok := r.URL.Query()[name]
	if !ok {
		return 0, nil
	}

	v, err := strconv.ParseInt(values[0], 10, 32)
	if err != nil {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestUri,
			Title:  "invalid query parameter " + name,
			Detail: "failed to parse value " + values[0],
		}
	}
	if v < 0 {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemValidation,
			Title:  "invalid query parameter " + name,
			Detail: fmt.Sprintf("%s %d must be greater than or equal to 0", name, v),
		}
	}

	return int(v), nil
}
