package huddle

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate
var uniTrans *ut.UniversalTranslator

func init() {

	validate = validator.New()
	en := en.New()
	uniTrans = ut.New(en, en)
	enTrans, _ := uniTrans.GetTranslator("en")

	// lowercase first letter of the field
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return strings.ToLower(field.Name)
	})

	validate.RegisterTranslation("required", enTrans, func(ut ut.Translator) error {
		return ut.Add("required", "{0} is a required field", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("required", fe.Namespace())
		return t
	})

	validate.RegisterTranslation("required_with", enTrans, func(ut ut.Translator) error {
		return ut.Add("required_with", "{0} is required when {1} is set", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("required_with", fe.Namespace(), strings.ToLower(fe.Param()))
		return t
	})

	validate.RegisterTranslation("oneof", enTrans, func(ut ut.Translator) error {
		return ut.Add("oneof", "{0} must be one of [{1}]", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("oneof", fe.Namespace(), fe.Param())
		return t
	})

	validate.RegisterTranslation("min", enTrans, func(ut ut.Translator) error {
		return ut.Add("min", "{0} must be at least {1}", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("min", fe.Namespace(), fe.Param())
		return t
	})

	validate.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		port, ok := fl.Field().Interface().(int)
		if !ok {
			return false
		}
		return port > 0 && port <= 65535
	})

	validate.RegisterTranslation("port", enTrans, func(ut ut.Translator) error {
		return ut.Add("port", "{0} must be a valid port number", true)

	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("port", fe.Namespace())
		return t
	})

}
