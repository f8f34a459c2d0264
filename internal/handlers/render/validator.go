package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/kaizen/internal/models"
)

const tagTaskCategory = "taskcategory"

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	// Registering static tag on fresh validator can't fail
	_ = v.RegisterValidation(tagTaskCategory, func(fl validator.FieldLevel) bool {
		return models.IsTaskCategory(fl.Field().String())
	})

	return v
}

// Fields are reported by json names: "tasks[0].dueOn", not "Tasks[0].DueOn"
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
