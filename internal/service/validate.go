package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
)

// nowFunc 统一时钟，测试里可替换
var nowFunc = func() time.Time { return time.Now().UTC() }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误里用 json 字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("listing_category", func(fl validator.FieldLevel) bool {
		return model.IsCategory(fl.Field().String())
	})
	_ = v.RegisterValidation("listing_region", func(fl validator.FieldLevel) bool {
		return model.IsRegion(fl.Field().String())
	})
	return v
}

// validateStruct 校验并把 validator 错误转成字段级 ValidationError
func validateStruct(s interface{}) *apperr.ValidationError {
	ve := apperr.NewValidationError()
	err := validate.Struct(s)
	if err == nil {
		return ve
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		ve.Add("_", err.Error())
		return ve
	}
	for _, fe := range fieldErrs {
		ve.Add(fe.Field(), fieldMessage(fe))
	}
	return ve
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "listing_category":
		return "must be one of: " + strings.Join(model.Categories, ", ")
	case "listing_region":
		return "must be one of: " + strings.Join(model.Regions, ", ")
	default:
		return "is invalid"
	}
}

// requireAdmin 管理员接口的统一鉴权
func requireAdmin(capa auth.Capability) error {
	if !capa.Authenticated() {
		return apperr.ErrUnauthorized
	}
	if !capa.IsAdmin() {
		return apperr.ErrForbidden
	}
	return nil
}
