package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/briangreenhill/formcoach/internal/plan"
)

const maxBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. Every failure is a
// *plan.ValidationError.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &plan.ValidationError{Field: "body", Reason: "request body is required"}
		}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return &plan.ValidationError{Field: te.Field, Reason: fmt.Sprintf("must be %s", te.Type)}
		}
		return &plan.ValidationError{Field: "body", Reason: err.Error()}
	}
	if err := validate.Struct(dst); err != nil {
		var fes validator.ValidationErrors
		if errors.As(err, &fes) && len(fes) > 0 {
			return fieldError(fes[0])
		}
		return &plan.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func fieldError(fe validator.FieldError) *plan.ValidationError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "required"
	case "min":
		reason = "must be at least " + fe.Param()
	case "max":
		reason = "must be at most " + fe.Param()
	default:
		reason = fmt.Sprintf("failed %q", fe.Tag())
	}
	return &plan.ValidationError{Field: field, Reason: reason}
}
