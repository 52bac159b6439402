package render

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	slugs "github.com/nkiryanov/schoolhub/internal/service/validate"
)

func configureValidator(v *validator.Validate) error {
	if err := v.RegisterValidation("slug", validateSlug); err != nil {
		return fmt.Errorf("register slug validation: %w", err)
	}
	v.RegisterTagNameFunc(useJSONTagNames)
	return nil
}

// Return on 'TagName' json tag instead of struct name
// Look at documentation of 'RegisterTagNameFunc' for more details
func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func validateSlug(fl validator.FieldLevel) bool {
	return slugs.Slug(fl.Field().String()) == nil
}
