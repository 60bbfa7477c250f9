package redaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneDetector(t *testing.T) {
	d := PhoneDetector()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "international", in: "Call me on +44 20 7946 0958 tomorrow", want: []string{"+44 20 7946 0958"}},
		{name: "us with parentheses", in: "office: (555) 123-4567", want: []string{"(555) 123-4567"}},
		{name: "local with dash", in: "ext 555-1234 only", want: []string{"555-1234"}},
		{name: "bare digits are order numbers", in: "Order 12345678 shipped"},
		{name: "iso date", in: "on 2023-01-15 we met"},
		{name: "date with hour", in: "at 2023-01-15 10:30"},
		{name: "european date", in: "signed 15/01/2023"},
		{name: "ip address", in: "host 192.168.100.200 down"},
		{name: "too short", in: "room 12-34"},
		{name: "too long", in: "iban +49 1234 5678 9012 3456 78"},
		{name: "glued to letters", in: "ref AB555-1234"},
		{name: "duplicates collapse", in: "555-1234 or 555-1234", want: []string{"555-1234"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Find(tt.in))
		})
	}
}

func TestEmailDetector(t *testing.T) {
	d := EmailDetector()

	got := d.Find("mail alice@example.com, Bob.Lee+dsar@mail.co.uk. or <carol@x.io>")
	assert.Equal(t, []string{"alice@example.com", "Bob.Lee+dsar@mail.co.uk", "carol@x.io"}, got)

	assert.Empty(t, d.Find("no address @here or user@localhost"))
}

func TestNewPatternDetectorRejectsBadExpression(t *testing.T) {
	_, err := NewPatternDetector(CategoryID, `(`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id detector")
}
