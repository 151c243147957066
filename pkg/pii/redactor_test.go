package pii

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRedact(t *testing.T) {
	r := NewRedactor(quietLogger())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "write to jane.doe@example.com please", "write to j******e@example.com please"},
		{"short email", "ab@x.io", "**@x.io"},
		{"card", "my card is 4111 1111 1111 1111 ok", "my card is **** **** **** 1111 ok"},
		{"card failing luhn is kept", "order 4111 1111 1111 1112", "order 4111 1111 1111 1112"},
		{"ssn", "ssn 123-45-6780", "ssn ***-**-6780"},
		{"invalid ssn area", "code 666-45-6789", "code 666-45-6789"},
		{"phone", "call 415-555-0142 now", "call ***-***-0142 now"},
		{"phone with parens", "call (415) 555-0142", "call (***) ***-0142"},
		{"nothing", "I think the answer is a hash map", "I think the answer is a hash map"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Redact(tc.in))
		})
	}
}

func TestRedactWithResultCounts(t *testing.T) {
	r := NewRedactor(quietLogger())

	res := r.RedactWithResult("mail a@b.co or c.d@e.org, phone 212-555-0100")
	assert.Equal(t, 2, res.Counts[TypeEmail])
	assert.Equal(t, 1, res.Counts[TypePhone])
	assert.Equal(t, 3, res.Total())
}

func TestRedactOnlyEnabledTypes(t *testing.T) {
	r := NewRedactor(nil, TypeEmail)

	assert.Equal(t, "x***y@corp.com 415-555-0142", r.Redact("xtray@corp.com 415-555-0142"))
}

func TestValidLuhn(t *testing.T) {
	assert.True(t, validLuhn("4111111111111111"))
	assert.True(t, validLuhn("5500-0000-0000-0004"))
	assert.False(t, validLuhn("0000000000000000"))
	assert.False(t, validLuhn("1234"))
}
