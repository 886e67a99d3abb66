package validator

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const maxMessageLength = 4096

// IsCanonicalHandle reports whether a raw handle already uses canonical-id
// syntax, i.e. parses as a plain email address.
func IsCanonicalHandle(handle string) bool {
	handle = strings.TrimSpace(handle)
	if !strings.Contains(handle, "@") {
		return false
	}
	addr, err := mail.ParseAddress(handle)
	return err == nil && addr.Address == handle
}

// LocalPart returns the part of an email-like handle before the '@'.
func LocalPart(handle string) string {
	if at := strings.IndexByte(handle, '@'); at >= 0 {
		return handle[:at]
	}
	return handle
}

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

func ValidateMessageBody(text string) ValidationErrors {
	errs := make(ValidationErrors)

	text = strings.TrimSpace(text)
	if text == "" {
		errs.Add("text", "Message text is required")
	} else if utf8.RuneCountInString(text) > maxMessageLength {
		errs.Add("text", "Message is too long")
	}
	return errs
}

func ValidateHandle(handle string) ValidationErrors {
	errs := make(ValidationErrors)

	handle = strings.TrimSpace(handle)
	if handle == "" {
		errs.Add("handle", "Handle is required")
	} else if len(handle) > 320 {
		errs.Add("handle", "Handle is too long")
	}
	return errs
}
