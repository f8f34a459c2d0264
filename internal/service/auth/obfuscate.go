package auth

import (
	"strings"
)

// Mask the local part of email address leaving the domain intact
// Up to 3 leading characters stay visible and at least 3 are always masked,
// so short local parts are fully hidden: ab@x.com -> ***@x.com
func ObfuscateEmail(email string) string {
	local, domain := email, ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		local, domain = email[:at], email[at:]
	}

	runes := []rune(local)
	visible := max(0, min(len(runes)-3, 3))
	masked := max(len(runes)-visible, 3)

	return string(runes[:visible]) + strings.Repeat("*", masked) + domain
}
