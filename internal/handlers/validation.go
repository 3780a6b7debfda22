package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validationErrorMessage returns a user-friendly validation error message.
func validationErrorMessage(err error) string {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return fmt.Sprintf("Invalid number %q", numErr.Num)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("Invalid value for %s", typeErr.Field)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "Malformed JSON body"
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, ve := range verrs {
			switch ve.Field() {
			case "Format":
				return "format must be one of: rgba, mono"
			case "URL":
				switch ve.Tag() {
				case "url":
					return "url must be an absolute URL"
				case "max":
					return "url is too long"
				}
			case "MaxWidth", "MaxHeight":
				return "max_width and max_height must not be negative"
			case "Algorithm":
				return "algorithm name is too long"
			case "Preset":
				return "preset name is too long"
			case "Limit", "Offset":
				return "limit and offset must not be negative"
			}
		}
	}
	return "Invalid request"
}

// isBodyTooLarge reports whether err came from a request size cap.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
