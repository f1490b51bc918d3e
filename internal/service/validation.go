package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ValidationError describe un campo invalido con un mensaje apto para el cliente.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalidField(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

const (
	maxEmailLength  = 40
	passwordSymbols = "@$!%*?&"
	passwordRules   = "required,min=8,max=20,strongpassword"
)

var (
	phonePattern = regexp.MustCompile(`^0\d{10}$`)
	validate     = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(JSONFieldName)
	if err := RegisterValidators(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterValidators agrega los tags phone y strongpassword. El router lo usa sobre el validator de gin.
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("phone", validPhone); err != nil {
		return err
	}
	return v.RegisterValidation("strongpassword", strongPassword)
}

// JSONFieldName reporta los campos con su nombre JSON.
func JSONFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

func validPhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(fl.Field().String())
}

// strongPassword exige minuscula, mayuscula, digito y un simbolo de @$!%*?&, sin otros caracteres.
func strongPassword(fl validator.FieldLevel) bool {
	var lower, upper, digit, symbol bool
	for _, r := range fl.Field().String() {
		switch {
		case r > unicode.MaxASCII:
			return false
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		default:
			return false
		}
	}
	return lower && upper && digit && symbol
}

// fieldMessages: campo -> tag -> mensaje; "" es el mensaje por defecto del campo.
var fieldMessages = map[string]map[string]string{
	"Fullname": {
		"required": "Full name field can't be left empty",
		"min":      "Minimum of 3 characters for the full name field",
		"max":      "Maximum of 40 characters for the full name field",
	},
	"email": {
		"": "Please provide a valid email",
	},
	"phoneNumber": {
		"": "Phone number must be 11 digits starting with 0 e.g: 08123456789",
	},
	"password": {
		"required": "Password field can't be left empty",
		"min":      "Password must be at least 8 characters long",
		"max":      "Password must be at most 20 characters long",
		"":         "Password must contain Lowercase, Uppercase, Numbers, and special characters",
	},
	"confirmPassword": {
		"": "Passwords do not match",
	},
}

// FieldMessage devuelve el mensaje de cliente para un campo conocido de cuentas.
func FieldMessage(field, tag string) (string, bool) {
	byTag, ok := fieldMessages[field]
	if !ok {
		return "", false
	}
	if msg, ok := byTag[tag]; ok {
		return msg, true
	}
	msg, ok := byTag[""]
	return msg, ok
}

// toValidationError traduce el primer error del validator; field se usa cuando el error viene de Var.
func toValidationError(err error, field string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Field() != "" {
		field = fe.Field()
	}
	msg, ok := FieldMessage(field, fe.Tag())
	if !ok {
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return invalidField(field, msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	return validate.Var(email, "email") == nil
}

func checkPassword(password string) error {
	if err := validate.Var(password, passwordRules); err != nil {
		return toValidationError(err, "password")
	}
	return nil
}
