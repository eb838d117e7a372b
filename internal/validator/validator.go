package validator

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

var EmailRegexp = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")

const (
	MaxMessageLength  = 1000
	MaxUsernameLength = 255
	MinPasswordLength = 6
	// bcrypt ignores everything past 72 bytes
	MaxPasswordLength = 72
)

type Validator struct {
	Errors map[string]string
}

func New() *Validator {
	return &Validator{
		Errors: make(map[string]string),
	}
}

func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// Check records msg under key unless cond holds. The first message for a key wins.
func (v *Validator) Check(cond bool, key, msg string) {
	if cond {
		return
	}
	if _, ok := v.Errors[key]; !ok {
		v.Errors[key] = msg
	}
}

// Err returns nil when v holds no errors.
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	return &Error{Fields: v.Errors}
}

func (v *Validator) CheckMessage(message string) {
	v.Check(strings.TrimSpace(message) != "", "message", "must be provided")
	v.Check(len(message) <= MaxMessageLength, "message", "must be atmost 1000 bytes long")
}

func (v *Validator) CheckUsername(username string) {
	v.Check(strings.TrimSpace(username) != "", "username", "must be provided")
	v.Check(utf8.RuneCountInString(username) <= MaxUsernameLength, "username", "must be atmost 255 characters")
}

// CheckEmail accepts an empty address; email is optional.
func (v *Validator) CheckEmail(email string) {
	if email == "" {
		return
	}
	v.Check(EmailRegexp.MatchString(email), "email", "must be a valid email address")
}

func (v *Validator) CheckPassword(password string) {
	v.Check(password != "", "password", "must be provided")
	v.Check(len(password) >= MinPasswordLength, "password", "must be atleast 6 characters long")
	v.Check(len(password) <= MaxPasswordLength, "password", "must be atmost 72 characters long")
}

// Error carries the failed fields of a validation.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	data, err := json.Marshal(e.Fields)
	if err != nil {
		return "validation failed"
	}
	return string(data)
}
