package polaris

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationKind names a reusable argument check.
type ValidationKind int

// Validation kinds.
const (
	ValidateOperationName ValidationKind = iota + 1
	ValidateUUID
	ValidateFirst
	ValidateID
	ValidateBoolean
	ValidateTimeout
)

// Validator checks a value and returns it in canonical form.
type Validator func(value interface{}) (interface{}, error)

// Static errors for err113 compliance.
var (
	ErrUnknownValidation = errors.New("unknown validation kind")
	ErrInvalidValue      = errors.New("invalid value")
)

var operationNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var validators = map[ValidationKind]Validator{
	ValidateOperationName: validateOperationName,
	ValidateUUID:          validateUUID,
	ValidateFirst:         validateFirst,
	ValidateID:            validateID,
	ValidateBoolean:       validateBoolean,
	ValidateTimeout:       validateTimeout,
}

// Validate runs the validator registered for kind. Failures are validation
// errors naming field.
func Validate(kind ValidationKind, field string, value interface{}) (interface{}, error) {
	v, ok := validators[kind]
	if !ok {
		return nil, NewError(KindValidation, field, fmt.Errorf("%w: %d", ErrUnknownValidation, kind))
	}

	out, err := v(value)
	if err != nil {
		return nil, NewError(KindValidation, field, err)
	}

	return out, nil
}

func validateOperationName(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok || !operationNamePattern.MatchString(s) {
		return nil, fmt.Errorf("%w: operation name %v", ErrInvalidValue, value)
	}

	return s, nil
}

func validateUUID(value interface{}) (interface{}, error) {
	s := fmt.Sprint(value)

	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a UUID: %w", ErrInvalidValue, s, err)
	}

	return id.String(), nil
}

func validateFirst(value interface{}) (interface{}, error) {
	var n int

	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
		if float64(n) != v {
			return nil, fmt.Errorf("%w: first must be an integer, got %v", ErrInvalidValue, v)
		}
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: first %q: %w", ErrInvalidValue, v, err)
		}

		n = parsed
	default:
		return nil, fmt.Errorf("%w: first must be an integer, got %T", ErrInvalidValue, value)
	}

	if n <= 0 {
		return nil, fmt.Errorf("%w: first must be positive, got %d", ErrInvalidValue, n)
	}

	return n, nil
}

func validateID(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: id must be a non-empty string", ErrInvalidValue)
	}

	return strings.TrimSpace(s), nil
}

func validateBoolean(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v)
		}

		return b, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a boolean", ErrInvalidValue, value)
	}
}

func validateTimeout(value interface{}) (interface{}, error) {
	var d time.Duration

	switch v := value.(type) {
	case time.Duration:
		d = v
	case int:
		d = time.Duration(v) * time.Second
	case float64:
		d = time.Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			secs, convErr := strconv.ParseFloat(v, 64)
			if convErr != nil {
				return nil, fmt.Errorf("%w: timeout %q is not a number", ErrInvalidValue, v)
			}

			parsed = time.Duration(secs * float64(time.Second))
		}

		d = parsed
	default:
		return nil, fmt.Errorf("%w: timeout %T is not a number", ErrInvalidValue, value)
	}

	if d <= 0 {
		return nil, fmt.Errorf("%w: invalid timeout %v", ErrInvalidValue, d)
	}

	return d, nil
}
