// Package validation provides custom validation rules for configuration values.
package validation

import (
	"encoding/base64"
	"fmt"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/asherah/internal/errors"
)

// NotSet is the Required rule reporting a missing value as "not set".
var NotSet = validation.Required.ErrorObject(
	validation.NewError("validation_not_set", "not set"),
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// OneOf accepts the listed values plus any aliases. Only the listed values
// appear in the error message.
func OneOf(values []string, aliases ...string) validation.Rule {
	allowed := make([]any, 0, len(values)+len(aliases))
	for _, v := range values {
		allowed = append(allowed, v)
	}
	for _, v := range aliases {
		allowed = append(allowed, v)
	}
	return validation.In(allowed...).ErrorObject(
		validation.NewError("validation_one_of", "must be one of these: "+strings.Join(values, ", ")),
	)
}

// KeyMaterial validates a key given either as size raw bytes or as standard
// base64 of size bytes. Empty values pass; combine with NotSet to require one.
func KeyMaterial(size int) validation.Rule {
	return validation.By(func(value any) error {
		s, ok := value.(string)
		if !ok {
			return validation.NewError("validation_key_material_type", "must be a string")
		}
		if s == "" || len(s) == size {
			return nil
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil || len(decoded) != size {
			return validation.NewError(
				"validation_key_material",
				fmt.Sprintf("must be %d bytes or base64 of %d bytes", size, size),
			)
		}
		return nil
	})
}

// HasKey validates that value, when set, is a key of m.
func HasKey(m map[string]string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, ok := m[s]; !ok {
			return validation.NewError("validation_has_key", "must be a key of region_map")
		}
		return nil
	})
}

// FieldRules associates a named field with the rules its value must pass.
type FieldRules struct {
	name  string
	value any
	rules []validation.Rule
}

// Field returns the rules for the field called name.
func Field(name string, value any, rules ...validation.Rule) FieldRules {
	return FieldRules{name: name, value: value, rules: rules}
}

// ValidateFields checks fields in order and reports the first failure as
// "<prefix>.<field> <message>".
func ValidateFields(prefix string, fields ...FieldRules) error {
	for _, f := range fields {
		if err := validation.Validate(f.value, f.rules...); err != nil {
			return fmt.Errorf("%s.%s %s", prefix, f.name, err.Error())
		}
	}
	return nil
}
