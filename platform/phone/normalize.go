// Package phone normalises user-entered phone numbers.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid is returned for numbers that do not parse or are not dialable.
var ErrInvalid = errors.New("invalid phone number")

// Normalize parses input relative to defaultRegion (ISO 3166 alpha-2) and
// returns it in E.164. Empty input yields an empty string and no error.
func Normalize(input, defaultRegion string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", nil
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(defaultRegion))
	if err != nil {
		return "", ErrInvalid
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", ErrInvalid
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}
