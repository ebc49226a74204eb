package etl

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Validator checks transformed entities against the required fields and
// per-field rules of their spec.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with struct-required checks enabled.
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Check returns ValidationErrors listing every failed field, sorted by field.
func (v *Validator) Check(spec *EntitySpec, e Entity) error {
	var errs ValidationErrors

	for _, field := range spec.Required {
		if val, ok := e[field]; !ok || isEmpty(val) {
			errs = append(errs, &ValidationError{Field: field, Reason: "is required"})
		}
	}

	fields := make([]string, 0, len(spec.Rules))
	for field := range spec.Rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		val, ok := e[field]
		if !ok || val == nil {
			continue
		}
		if err := v.validate.Var(val, spec.Rules[field]); err != nil {
			errs = append(errs, &ValidationError{Field: field, Reason: describe(err, val)})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

func describe(err error, val any) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%v is not one of [%s]", val, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%v is below minimum %s", val, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%v is above maximum %s", val, fe.Param())
	default:
		return fmt.Sprintf("%v fails %s", val, fe.Tag())
	}
}
