package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New()

var (
	errBodyTooLarge = errors.New("request body too large")
	errTooLong      = errors.New("value too long")
)

func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if isBodyTooLargeError(err) {
			return errBodyTooLarge
		}
		return fmt.Errorf("invalid JSON body")
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body")
	}

	if err := requestValidator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			field := strings.ToLower(first.Field())
			switch first.Tag() {
			case "required":
				return fmt.Errorf("%s is required", field)
			case "max":
				return fmt.Errorf("%w: %s must be at most %s characters", errTooLong, field, first.Param())
			default:
				return fmt.Errorf("invalid %s", field)
			}
		}

		return fmt.Errorf("invalid request payload")
	}

	return nil
}
