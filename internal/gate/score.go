package gate

import (
	"strings"
	"unicode"
)

// ParseScore extracts the leading integer of a model reply and clamps it to 0-100.
// Anything without a leading integer yields (0, false).
//
//	"85"          -> 85, true
//	" 92%\n"      -> 92, true
//	"150"         -> 100, true
//	"-3"          -> 0, true
//	"Score: 90"   -> 0, false
func ParseScore(text string) (int, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	value := 0
	digits := 0
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			break
		}
		digits++
		if value <= 100 {
			value = value*10 + int(r-'0')
		}
	}
	if digits == 0 {
		return 0, false
	}

	if negative {
		return 0, true
	}
	if value > 100 {
		value = 100
	}
	return value, true
}
