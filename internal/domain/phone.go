package domain

import (
	"regexp"
	"strings"
)

// Safaricom/Airtel mobile numbers in local, 254 or +254 form.
var kenyanPhone = regexp.MustCompile(`^(?:\+254|254|0)?([17]\d{8})$`)

// NormalizePhone returns the 254XXXXXXXXX form the gateway expects.
func NormalizePhone(phone string) (string, error) {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	m := kenyanPhone.FindStringSubmatch(phone)
	if m == nil {
		return "", ValidationError("invalid phone number format, use e.g. 0712345678")
	}
	return "254" + m[1], nil
}
