package mistral

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"codemcp/internal/model"
)

var schema = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// decodeCompletion parses and validates a completion body. It returns either
// a fully valid response or a MISTRAL_SCHEMA error, never both.
func decodeCompletion(body []byte) (*model.CompletionResponse, error) {
	var resp model.CompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.WrapError(model.KindSchema, "invalid completion response: "+err.Error(), err)
	}
	if err := schema.Struct(&resp); err != nil {
		return nil, model.WrapError(model.KindSchema, "invalid completion response: "+describe(err), err)
	}
	return &resp, nil
}

func validateRequest(req interface{}) error {
	if err := schema.Struct(req); err != nil {
		return model.WrapError(model.KindInvalidRequest, "invalid request: "+describe(err), err)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", field))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "min":
			parts = append(parts, fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}
