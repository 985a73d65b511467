package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

// validate is the singleton validator instance used across all handlers.
var validate *validator.Validate

// queryDecoder decodes query strings into request structs. It caches struct
// metadata and is safe for concurrent use.
var queryDecoder *schema.Decoder

func init() {
	validate = validator.New()
	queryDecoder = schema.NewDecoder()
	queryDecoder.IgnoreUnknownKeys(true)
}

// ValidationError wraps validation errors with user-friendly messages.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors contains multiple validation errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	var msgs []string
	for _, e := range v.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(msgs, "; ")
}

// translateValidationError converts a validator.FieldError to a user-friendly message.
func translateValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("Failed validation: %s", fe.Tag())
	}
}

// formatValidationErrors converts validator errors to ValidationErrors.
func formatValidationErrors(err error) ValidationErrors {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return ValidationErrors{
			Errors: []ValidationError{{Field: "unknown", Message: err.Error()}},
		}
	}

	var valErrors []ValidationError
	for _, fe := range ve {
		valErrors = append(valErrors, ValidationError{
			Field:   fe.Field(),
			Message: translateValidationError(fe),
		})
	}
	return ValidationErrors{Errors: valErrors}
}

// Validate checks the struct tags of a request and returns user-friendly
// errors. The realtime gateway validates command payloads with it too.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// DecodeJSON unmarshals data into a T and validates it.
func DecodeJSON[T any](data []byte) (*T, error) {
	var req T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err)
		}
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// decodeAndValidate decodes a JSON request body and validates it.
func decodeAndValidate[T any](r *http.Request) (*T, error) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err)
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// decodeQuery decodes and validates the query string of a request.
func decodeQuery[T any](values url.Values) (*T, error) {
	var req T
	if err := queryDecoder.Decode(&req, values); err != nil {
		return nil, fmt.Errorf("%w: invalid query parameters: %v", ErrBadRequest, err)
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}
