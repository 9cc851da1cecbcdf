package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidBody возвращается, если тело запроса не является корректным JSON.
var ErrInvalidBody = errors.New("invalid request body")

// FieldErrors содержит ошибки валидации по именам полей JSON.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// New возвращает валидатор с поддержкой decimal.Decimal и тега barcode.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// decimal.Decimal сравнивается в правилах gte/lte как float64.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("barcode", func(fl validatorv10.FieldLevel) bool {
		return IsValidBarcode(fl.Field().String())
	})

	return v
}

// DecodeAndValidate читает JSON из r в out и проверяет его правилами validate.
func DecodeAndValidate(r io.Reader, out interface{}, v *validatorv10.Validate) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}

	if err := v.Struct(out); err != nil {
		return validationErrorsToMap(err)
	}

	return nil
}

func validationErrorsToMap(err error) error {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	out := FieldErrors{}
	for _, fe := range ve {
		out[fe.Field()] = fmt.Sprintf("failed on %q", fe.Tag())
	}
	return out
}
