package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator reports field names by their json tag.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i any) error { return rv.v.Struct(i) }

const maxBodyBytes = 16 << 10

// errBadBody wraps decode failures so they read well in a 400 body.
var errBadBody = errors.New("malformed request body")

// bindStrict decodes a JSON body rejecting unknown fields and trailing
// data, then runs the echo validator.
func bindStrict(c echo.Context, dst any) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected trailing data", errBadBody)
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(dst)
}

// describeBindError returns the offending field (if any) and a message.
func describeBindError(err error) (string, string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field(), "is required"
		case "email":
			return fe.Field(), "must be an email address"
		case "url", "http_url":
			return fe.Field(), "must be an absolute URL"
		case "min":
			return fe.Field(), "must be at least " + fe.Param()
		case "max":
			return fe.Field(), "must be at most " + fe.Param()
		default:
			return fe.Field(), "is invalid"
		}
	}
	return "", err.Error()
}

func badRequest(c echo.Context, err error) error {
	field, msg := describeBindError(err)
	body := echo.Map{"ok": false, "reason": "invalid", "error": msg}
	if field != "" {
		body["field"] = field
		body["error"] = field + " " + msg
	}
	return c.JSON(http.StatusBadRequest, body)
}
