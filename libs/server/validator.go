package server

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator echo 的请求校验器, 错误里使用 json 字段名
type CustomValidator struct {
	Validator *validator.Validate
}

func NewCustomValidator() *CustomValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return &CustomValidator{Validator: v}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.Validator.Struct(i)
}

// ValidationMessage 取第一个字段错误, 拼成可读的提示
func ValidationMessage(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "oneof":
			return fe.Field() + " must be one of " + fe.Param()
		case "max":
			return fe.Field() + " must be at most " + fe.Param()
		case "min":
			return fe.Field() + " must be at least " + fe.Param()
		case "email":
			return fe.Field() + " must be a valid email"
		default:
			return fe.Field() + " is invalid"
		}
	}
	return err.Error()
}
