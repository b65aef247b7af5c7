package phone

import (
	"fmt"
	"strings"
	"unicode"
)

// Format rewrites any accepted Kenyan MSISDN form to the leading zero form
// stored on user records ("254712345678", "+254712345678" and "0712345678"
// all become "0712345678"). The gateway speaks international format, user
// rows store local format; lookups fail silently if the two ever diverge,
// so every phone comparison goes through here.
func Format(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimPrefix(s, "+")

	if strings.HasPrefix(s, "254") && len(s) > 3 {
		s = "0" + s[3:]
	}

	if !strings.HasPrefix(s, "0") && len(s) == 9 && allDigits(s) {
		// bare subscriber number, e.g. "712345678"
		s = "0" + s
	}

	return s
}

// To254 converts a phone number to the international form Daraja expects.
func To254(raw string) (string, error) {
	local := Format(raw)
	if len(local) != 10 || !strings.HasPrefix(local, "0") || !allDigits(local) {
		return "", fmt.Errorf("invalid phone number: %q", raw)
	}
	return "254" + local[1:], nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
