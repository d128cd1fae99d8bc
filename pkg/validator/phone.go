package validator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyPhone indicates the phone number is missing entirely
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidFormat indicates the phone number contains characters that are
	// neither digits nor common separators
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrInvalidLength indicates the phone number is not 10 digits long
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")

	// ErrInvalidPrefix indicates the phone number does not use a known Sri
	// Lankan mobile prefix
	ErrInvalidPrefix = errors.New("phone number must start with a Sri Lankan mobile prefix (070-079)")
)

// operators maps each Sri Lankan mobile prefix to the network that issued it.
// The map doubles as the allow-list during validation.
var operators = map[string]string{
	"070": "Mobitel",
	"071": "Mobitel",
	"072": "Hutch",
	"074": "Dialog",
	"075": "Airtel",
	"076": "Dialog",
	"077": "Dialog",
	"078": "Hutch",
	"079": "Dialog",
}

// PhoneValidator normalizes and checks Sri Lankan mobile numbers before they
// are stored on accounts and bookings or handed to the SMS gateway.
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate normalizes phone to its local 07XXXXXXXX form.
// Separators (spaces, dashes, dots, parentheses) and the 94 country code in
// its +94 and 0094 spellings are accepted. Returns the sanitized number or
// the reason it was rejected.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized, ok := v.Sanitize(phone)
	if !ok {
		return "", ErrInvalidFormat
	}

	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}

	if _, known := operators[sanitized[:3]]; !known {
		return "", ErrInvalidPrefix
	}

	return sanitized, nil
}

// Sanitize strips separators and rewrites the country code to the local
// leading zero. ok is false when phone contains anything that is not a digit
// or a separator.
func (v *PhoneValidator) Sanitize(phone string) (string, bool) {
	var b strings.Builder
	b.Grow(len(phone))

	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '+':
			// separator, drop it
		default:
			return "", false
		}
	}

	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "0094") && len(digits) == 13:
		digits = "0" + digits[4:]
	case strings.HasPrefix(digits, "94") && len(digits) == 11:
		digits = "0" + digits[2:]
	}

	return digits, true
}

// Operator reports which mobile network issued the number.
func (v *PhoneValidator) Operator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return operators[sanitized[:3]], nil
}

// Display formats a valid number for humans: 07X XXX XXXX.
func (v *PhoneValidator) Display(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", sanitized[:3], sanitized[3:6], sanitized[6:]), nil
}

// IsValid reports whether phone passes Validate.
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
