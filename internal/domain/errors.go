package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Common domain errors that can occur while scoring or analyzing evaluations.
var (
	// ErrNoJSONBlock indicates that a model response did not contain a
	// fenced ```json block.
	ErrNoJSONBlock = errors.New("no fenced json block found")

	// ErrMalformedJSON indicates that the fenced block did not decode into
	// the expected document shape.
	ErrMalformedJSON = errors.New("malformed json document")

	// ErrEmptyRubric indicates that a rubric carries no criteria.
	ErrEmptyRubric = errors.New("rubric has no criteria")

	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ParseError reports a model response that could not be turned into the
// expected JSON document. It is always fatal to the call that produced it.
type ParseError struct {
	// Stage names the pipeline step that failed ("extract" or "decode").
	Stage string

	// Document names the expected document ("evaluation", "bias_analysis").
	Document string

	// ResponseLength is the length of the raw response in bytes.
	ResponseLength int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: document=%s, stage=%s, response_length=%d, err=%v",
		e.Document, e.Stage, e.ResponseLength, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a new ParseError with the given details.
func NewParseError(document, stage string, responseLength int, err error) *ParseError {
	return &ParseError{
		Stage:          stage,
		Document:       document,
		ResponseLength: responseLength,
		Err:            err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// validationErrorFrom converts the result of a validator run into a
// ValidationError. Errors that are not field-level failures are returned
// unchanged.
func validationErrorFrom(entity string, err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %s: %w", entity, err)
	}

	verr := NewValidationError(entity)
	for _, fe := range fieldErrs {
		verr.AddError(describeFieldError(fe))
	}
	return verr
}

// describeFieldError renders one validator failure as a short sentence.
func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte", "min":
		return fmt.Sprintf("%s must be >= %s (got %v)", field, fe.Param(), fe.Value())
	case "lte", "max":
		return fmt.Sprintf("%s must be <= %s (got %v)", field, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got %v)", field, fe.Param(), fe.Value())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicate %s values", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
