package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
		ok      bool
	}{
		{"six digit", "Your verification code is 482913", "482913", true},
		{"four digit", "PIN: 4821 expires soon", "4821", true},
		{"hyphenated", "Use code 123-456 to continue", "123456", true},
		{"eight digit", "Code 48291384 valid for 10 min", "48291384", true},
		{"six wins over embedded four", "code 482913 or dial 4821", "482913", true},
		{"no code", "Welcome to the service!", "", false},
		{"digits glued to letters", "ref ABC123456X", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, "4915123456789", NormalizeNumber("+49 151 2345-6789"))
	assert.Equal(t, "12025550123", NormalizeNumber("1 (202) 555-0123"))
	assert.Equal(t, "", NormalizeNumber("no digits here"))
}

func TestMaskNumber(t *testing.T) {
	assert.Equal(t, "+491********89", MaskNumber("+4915123456789"))
	assert.Equal(t, "****", MaskNumber("123"))
	assert.Equal(t, "****", MaskNumber("1234"))
	assert.Equal(t, "+12345", MaskNumber("12345"))
}

func TestCountryFlag(t *testing.T) {
	// US number maps to the US regional indicator pair.
	assert.Equal(t, "\U0001F1FA\U0001F1F8", CountryFlag("12025550123"))
	// Unparsable input falls back to the globe.
	assert.Equal(t, fallbackFlag, CountryFlag(""))
	assert.Equal(t, fallbackFlag, CountryFlag("12"))
}
