package etl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/characterforge/compendium/internal/source"
)

// ConfigurationError is a bad phase table, argument or entity spec. It aborts
// the run.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// SourceError wraps a missing or malformed collection for the kind that was
// reading it. It aborts the phase.
type SourceError struct {
	Kind Kind
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source error importing %s: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// TransformationError is an unrecoverable shape mismatch in one record.
type TransformationError struct {
	Field  string
	Reason string
}

func (e *TransformationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Transformf builds a TransformationError for field.
func Transformf(field, format string, args ...any) error {
	return &TransformationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError is a transformed entity that breaks a field rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors collects every failed rule of one entity.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Error()
	}
	return strings.Join(parts, "; ")
}

// PersistenceError is a failed write for one record; its transaction has been
// rolled back.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// LinkResolutionError is a reference whose target does not exist.
type LinkResolutionError struct {
	Relation string
	Key      string
	Target   string
}

func (e *LinkResolutionError) Error() string {
	return fmt.Sprintf("%s: %q references unknown %q", e.Relation, e.Key, e.Target)
}

// IsFatal reports whether err must abort the run rather than be recorded
// against a single record.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var cfgErr *ConfigurationError
	var srcErr *SourceError
	var missing *source.MissingSourceError
	var malformed *source.MalformedSourceError
	return errors.As(err, &cfgErr) ||
		errors.As(err, &srcErr) ||
		errors.As(err, &missing) ||
		errors.As(err, &malformed)
}
