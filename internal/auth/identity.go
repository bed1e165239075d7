package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

type identity struct {
	Username string `validate:"required,min=3,max=30,handle"`
	Email    string `validate:"required,email"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("handle", isHandle)
	return v
}

// isHandle accepts ASCII letters, digits, '.', '_' and '-'.
func isHandle(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

func validateIdentity(username, email string) error {
	err := validate.Struct(identity{Username: username, Email: email})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		if fe.Field() == "Username" {
			return ErrInvalidUsername
		}
	}
	return ErrInvalidEmail
}

// ValidEmail reports whether s is a bare email address.
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}
