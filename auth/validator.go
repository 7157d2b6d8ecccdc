package auth

import (
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"

	"chat-relay/errors"
)

var validate = validator.New()

// Credentials carries a registration request through validation.
type Credentials struct {
	Login      string `validate:"required,min=3,max=32,alphanum"`
	Credential string `validate:"required,min=8,max=72"`
}

// ValidateRegistration checks business rules before any expensive
// cryptographic operation runs.
func ValidateRegistration(c Credentials) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidCredential, err)
	}
	if !hasLetterAndDigit(c.Credential) {
		return fmt.Errorf("%w: must contain at least one letter and one digit", errors.ErrInvalidCredential)
	}
	return nil
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsNumber(r):
			digit = true
		}
	}
	return letter && digit
}
