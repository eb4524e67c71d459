package validation

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is matched by every validation failure
var ErrInvalid = errors.New("validation failed")

// FieldError describes the first rule a field broke
type FieldError struct {
	Field string
	Rule  string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalid
}

// Validator validates structs using `validate` tags.
//
// Besides the built-in rules of go-playground/validator it knows:
//
//	hex       string is hex of whole bytes, spaces are ignored
//	hexlen=N  string is hex of exactly N bytes
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	v := validator.New()

	// report the JSON name since that is what clients send
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "hex", isHex)
	mustRegister(v, "hexlen", isHexLen)

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

// Validate validates a struct. Rule failures match ErrInvalid, misuse such
// as a non-struct argument does not.
func (v *Validator) Validate(s interface{}) error {
	if val := reflect.ValueOf(s); val.Kind() == reflect.Ptr && val.IsNil() {
		return fmt.Errorf("%w: nil value", ErrInvalid)
	}

	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}

	fe := errs[0]
	return &FieldError{Field: fe.Field(), Rule: fe.Tag(), Msg: message(fe)}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "hex":
		return "must be hex encoded"
	case "hexlen":
		return fmt.Sprintf("must be %s hex encoded bytes", fe.Param())
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return fmt.Sprintf("failed %s rule", fe.Tag())
}

func isHex(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	_, err := decodeHex(fl.Field().String())
	return err == nil
}

func isHexLen(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	b, err := decodeHex(fl.Field().String())
	return err == nil && len(b) == n
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.ReplaceAll(s, " ", ""))
}
