// Package passwords checks new passwords against the validators named in
// the settings.
package passwords

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ferme-mv/pahou/internal/config"
)

const defaultMaxSimilarity = 0.7

// User carries the account attributes a password must not resemble.
type User struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// RuleError reports one failed rule.
type RuleError struct {
	Rule    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

// Validator checks a password.
type Validator interface {
	Validate(password string, user User) error
}

// Set runs several validators.
type Set []Validator

// Validate returns every failure joined with errors.Join, or nil.
func (s Set) Validate(password string, user User) error {
	var errs []error
	for _, v := range s {
		if err := v.Validate(password, user); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromSettings builds the validators listed in specs, in order.
func FromSettings(specs []config.ValidatorSpec) (Set, error) {
	set := make(Set, 0, len(specs))
	for _, spec := range specs {
		switch spec.Name {
		case config.ValidatorUserAttributeSimilarity:
			set = append(set, UserAttributeSimilarity{MaxSimilarity: defaultMaxSimilarity})
		case config.ValidatorMinimumLength:
			set = append(set, MinimumLength{Min: spec.MinLength})
		case config.ValidatorCommon:
			set = append(set, Common{})
		case config.ValidatorNumeric:
			set = append(set, Numeric{})
		default:
			return nil, fmt.Errorf("unknown password validator %q", spec.Name)
		}
	}
	return set, nil
}

// MinimumLength rejects passwords shorter than Min characters.
type MinimumLength struct {
	Min int
}

func (v MinimumLength) Validate(password string, _ User) error {
	minLength := v.Min
	if minLength <= 0 {
		minLength = 8
	}
	if utf8.RuneCountInString(password) < minLength {
		return &RuleError{
			Rule:    config.ValidatorMinimumLength,
			Message: fmt.Sprintf("password is too short: it must contain at least %d characters", minLength),
		}
	}
	return nil
}

// Numeric rejects passwords made only of digits.
type Numeric struct{}

func (Numeric) Validate(password string, _ User) error {
	if password == "" {
		return nil
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return &RuleError{Rule: config.ValidatorNumeric, Message: "password is entirely numeric"}
}

// Common rejects passwords found in a list of frequently used passwords.
type Common struct{}

func (Common) Validate(password string, _ User) error {
	if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]; ok {
		return &RuleError{Rule: config.ValidatorCommon, Message: "password is too common"}
	}
	return nil
}

// UserAttributeSimilarity rejects passwords too close to the user's
// username, email or names.
type UserAttributeSimilarity struct {
	MaxSimilarity float64
}

var nonWord = regexp.MustCompile(`\W+`)

func (v UserAttributeSimilarity) Validate(password string, user User) error {
	threshold := v.MaxSimilarity
	if threshold <= 0 {
		threshold = defaultMaxSimilarity
	}
	pw := strings.ToLower(password)
	attrs := []struct{ name, value string }{
		{"username", user.Username},
		{"email", user.Email},
		{"first name", user.FirstName},
		{"last name", user.LastName},
	}
	for _, attr := range attrs {
		if attr.value == "" {
			continue
		}
		value := strings.ToLower(attr.value)
		parts := append(nonWord.Split(value, -1), value)
		for _, part := range parts {
			if part == "" || exceedsLengthRatio(pw, threshold, part) {
				continue
			}
			if quickRatio(pw, part) >= threshold {
				return &RuleError{
					Rule:    config.ValidatorUserAttributeSimilarity,
					Message: fmt.Sprintf("password is too similar to the %s", attr.name),
				}
			}
		}
	}
	return nil
}

// exceedsLengthRatio skips values far shorter than the password, which
// cannot reach the similarity threshold.
func exceedsLengthRatio(password string, maxSimilarity float64, value string) bool {
	pwLen := utf8.RuneCountInString(password)
	valueLen := utf8.RuneCountInString(value)
	bound := maxSimilarity / 2 * float64(pwLen)
	return pwLen >= 10*valueLen && float64(valueLen) < bound
}

// quickRatio is an upper bound on the similarity of a and b computed from
// their shared characters: 2*M / (len(a)+len(b)).
func quickRatio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int)
	for _, r := range b {
		avail[r]++
	}
	matches := 0
	for _, r := range a {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}
