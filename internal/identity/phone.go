// Package identity implements the customer identity resolution engine:
// phone/household-key normalization, the canonical Contact record, and the
// find-or-create Resolver that every lifecycle module funnels through.
package identity

// NormalizePhone canonicalizes a free-text phone number to a 10-digit string.
// All non-digit characters are stripped; an 11-digit number with a leading
// country code 1 is reduced to its 10-digit national form. Anything else is
// unparseable and returns ok=false.
//
// The result is used for set membership and array deduplication, so identical
// raw input must always yield identical output.
func NormalizePhone(raw string) (string, bool) {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return string(digits), true
}
