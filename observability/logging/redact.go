package logging

import "strings"

// RedactedValue replaces sensitive string attributes.
const RedactedValue = "[REDACTED]"

// Attribute keys whose values never reach the log. Remittance account ids
// identify a borrower outside the protocol.
var sensitiveKeys = map[string]struct{}{
	"authorization":   {},
	"token":           {},
	"secret":          {},
	"hmac_secret":     {},
	"operator_secret": {},
	"signature":       {},
	"passphrase":      {},
	"account_id":      {},
	"accountid":       {},
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue redacts non-empty values; empty values stay empty.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}
