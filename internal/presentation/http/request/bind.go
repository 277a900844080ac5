// Package request binds and validates HTTP request payloads.
package request

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/tableside/internal/repository/codec"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	// Money fields validate as numbers so min/gte tags apply to them.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		switch d := field.Interface().(type) {
		case decimal.Decimal:
			f, _ := d.Float64()
			return f
		case codec.Decimal:
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{}, codec.Decimal{})
	return v
}

// Bind decodes the request into dst and runs its validate tags. Decoding
// failures are bad requests; tag failures are unprocessable with one detail
// per offending field.
func Bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	return Validate(dst)
}

// Validate runs the validate tags of v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	fields := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe)] = fe.Tag()
	}
	return errorbank.Unprocessable("request validation failed", errorbank.WithCause(err), errorbank.WithDetails(fields))
}

// fieldPath drops the top-level struct name from the namespace so nested
// fields read as items[0].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
