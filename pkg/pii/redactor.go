// Package pii masks personal data in candidate transcripts before they are sent
// to the remote judgment service.
package pii

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// Type is a kind of personal data
type Type string

const (
	TypeEmail      Type = "email"
	TypeCreditCard Type = "credit_card"
	TypeSSN        Type = "ssn"
	TypePhone      Type = "phone"
)

// AllTypes in the order they are applied. Cards run before phones so a card
// number is never half-masked as a phone number.
var AllTypes = []Type{TypeEmail, TypeCreditCard, TypeSSN, TypePhone}

var (
	emailRegex      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	creditCardRegex = regexp.MustCompile(`\b(?:\d[-\s]?){12,18}\d\b`)
	ssnRegex        = regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`)
	phoneRegex      = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
)

// Result describes one Redact call
type Result struct {
	Text   string
	Counts map[Type]int
}

// Total returns the number of masked matches
func (r Result) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Redactor masks personal data, keeping separators and the last four digits
// of numbers so transcripts remain readable.
type Redactor struct {
	logger  *logrus.Logger
	enabled map[Type]bool
	mask    rune
}

// NewRedactor creates a redactor for the given types, or all types if none are given
func NewRedactor(logger *logrus.Logger, types ...Type) *Redactor {
	if len(types) == 0 {
		types = AllTypes
	}
	r := &Redactor{
		logger:  logger,
		enabled: make(map[Type]bool, len(types)),
		mask:    '*',
	}
	for _, t := range types {
		r.enabled[t] = true
	}
	return r
}

// Redact returns text with personal data masked
func (r *Redactor) Redact(text string) string {
	return r.RedactWithResult(text).Text
}

// RedactWithResult masks text and reports what was found
func (r *Redactor) RedactWithResult(text string) Result {
	res := Result{Text: text, Counts: make(map[Type]int)}
	if text == "" {
		return res
	}

	for _, t := range AllTypes {
		if !r.enabled[t] {
			continue
		}
		switch t {
		case TypeEmail:
			res.Text = replace(res.Text, emailRegex, nil, r.maskEmail, &res, t)
		case TypeCreditCard:
			res.Text = replace(res.Text, creditCardRegex, validLuhn, r.maskDigits(4), &res, t)
		case TypeSSN:
			res.Text = replace(res.Text, ssnRegex, validSSN, r.maskDigits(4), &res, t)
		case TypePhone:
			res.Text = replace(res.Text, phoneRegex, nil, r.maskDigits(4), &res, t)
		}
	}

	if total := res.Total(); total > 0 && r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"pii_matches": total,
			"text_length": len(text),
		}).Debug("Personal data masked in transcript")
	}
	return res
}

func replace(text string, re *regexp.Regexp, valid func(string) bool, mask func(string) string, res *Result, t Type) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		if valid != nil && !valid(match) {
			return match
		}
		res.Counts[t]++
		return mask(match)
	})
}

// maskDigits masks every digit except the last keep
func (r *Redactor) maskDigits(keep int) func(string) string {
	return func(s string) string {
		total := 0
		for _, c := range s {
			if unicode.IsDigit(c) {
				total++
			}
		}
		var b strings.Builder
		seen := 0
		for _, c := range s {
			if unicode.IsDigit(c) {
				seen++
				if seen <= total-keep {
					b.WriteRune(r.mask)
					continue
				}
			}
			b.WriteRune(c)
		}
		return b.String()
	}
}

// maskEmail keeps the first and last character of the local part and the domain
func (r *Redactor) maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return strings.Repeat(string(r.mask), len(local)) + domain
	}
	return local[:1] + strings.Repeat(string(r.mask), len(local)-2) + local[len(local)-1:] + domain
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func validLuhn(s string) bool {
	digits := digitsOf(s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	if strings.Count(digits, digits[:1]) == len(digits) {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validSSN(s string) bool {
	digits := digitsOf(s)
	if len(digits) != 9 {
		return false
	}
	if digits == "123456789" || strings.Count(digits, digits[:1]) == 9 {
		return false
	}
	area := digits[:3]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return digits[3:5] != "00" && digits[5:] != "0000"
}
