package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Validator validates configuration
type Validator interface {
	Validate(config interface{}) error
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(config interface{}) error

// Validate implements Validator
func (f ValidatorFunc) Validate(config interface{}) error {
	return f(config)
}

// Validate runs every validator and joins their errors.
func Validate(config interface{}, validators ...Validator) error {
	var errs []error
	for _, v := range validators {
		if err := v.Validate(config); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// field resolves a dotted path such as "NATS.URL" on a struct or pointer.
func field(config interface{}, path string) (reflect.Value, error) {
	current := reflect.ValueOf(config)
	for _, part := range strings.Split(path, ".") {
		for current.Kind() == reflect.Ptr {
			if current.IsNil() {
				return reflect.Value{}, fmt.Errorf("field %s: nil pointer", path)
			}
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field %s: not a struct", path)
		}
		current = current.FieldByName(part)
		if !current.IsValid() {
			return reflect.Value{}, fmt.Errorf("field %s not found", path)
		}
	}
	return current, nil
}

// RequiredFields fails when any of the named fields holds its zero value.
func RequiredFields(fields ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		var missing []string
		for _, name := range fields {
			v, err := field(config, name)
			if err != nil {
				return err
			}
			if v.IsZero() {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("required fields are missing: %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

// RangeValidator checks that a numeric field lies in [min, max].
func RangeValidator(name string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		v, err := field(config, name)
		if err != nil {
			return err
		}

		var n float64
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n = float64(v.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n = float64(v.Uint())
		case reflect.Float32, reflect.Float64:
			n = v.Float()
		default:
			return fmt.Errorf("field %s is not numeric", name)
		}

		if n < min || n > max {
			return fmt.Errorf("field %s value %v is out of range [%v, %v]", name, n, min, max)
		}
		return nil
	})
}

// OneOfValidator checks that a field equals one of the allowed values.
func OneOfValidator(name string, allowed ...interface{}) Validator {
	return ValidatorFunc(func(config interface{}) error {
		v, err := field(config, name)
		if err != nil {
			return err
		}
		got := v.Interface()
		for _, a := range allowed {
			if reflect.DeepEqual(got, a) {
				return nil
			}
		}
		return fmt.Errorf("field %s value %v is not one of allowed values: %v", name, got, allowed)
	})
}
