package otp

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const fallbackFlag = "\U0001F310" // globe, used when the region is unknown

// NormalizeNumber reduces a phone number to its canonical digits-only form:
// country code plus subscriber digits, no plus sign, no formatting.
func NormalizeNumber(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskNumber renders a number for display, keeping the first three and last
// two digits visible.
func MaskNumber(number string) string {
	digits := NormalizeNumber(number)
	if len(digits) <= 4 {
		return "****"
	}
	const showFirst, showLast = 3, 2
	stars := len(digits) - showFirst - showLast
	if stars < 0 {
		stars = 0
	}
	return "+" + digits[:showFirst] + strings.Repeat("*", stars) + digits[len(digits)-showLast:]
}

// CountryFlag returns the flag emoji for the number's region, or a globe
// when the region cannot be determined.
func CountryFlag(number string) string {
	digits := NormalizeNumber(number)
	if digits == "" {
		return fallbackFlag
	}
	parsed, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return fallbackFlag
	}
	region := phonenumbers.GetRegionCodeForNumber(parsed)
	if len(region) != 2 {
		return fallbackFlag
	}
	region = strings.ToUpper(region)
	const base = 0x1F1E6 // regional indicator A
	return string(rune(base+int(region[0]-'A'))) + string(rune(base+int(region[1]-'A')))
}
