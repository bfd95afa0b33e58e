package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "jane.roe@example.com" → "ja***@example.com"
// Local parts of two characters or fewer are fully masked.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
