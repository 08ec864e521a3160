package course

import (
	"net/mail"
	"strings"
	"unicode"
)

// ValidateCourse checks the (term, subject, catalog) triple.
func ValidateCourse(v *ValidationError, term, subject, catalog string) {
	term = strings.TrimSpace(term)
	switch {
	case term == "":
		v.Add("term", "required")
	case !allDigits(term):
		v.Add("term", "must be a numeric term code")
	}
	subject = strings.TrimSpace(subject)
	switch {
	case subject == "":
		v.Add("subject", "required")
	case !alnum(subject):
		v.Add("subject", "must be alphanumeric")
	}
	catalog = strings.TrimSpace(catalog)
	switch {
	case catalog == "":
		v.Add("catalogNumber", "required")
	case !alnum(catalog):
		v.Add("catalogNumber", "must be alphanumeric")
	}
}

// ValidateEmail checks that email is a single bare address.
func ValidateEmail(v *ValidationError, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		v.Add("email", "required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.Add("email", "malformed address")
	}
}

func ValidateSection(v *ValidationError, section string) {
	section = strings.TrimSpace(section)
	switch {
	case section == "":
		v.Add("section", "required")
	case !alnum(section):
		v.Add("section", "must be alphanumeric")
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func alnum(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
