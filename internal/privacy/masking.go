package privacy

import (
	"net/url"
	"strings"

	"messengerrelay/internal/constants"
)

// MaskPSID masks a page-scoped user ID showing only the last 4 characters
// Example: "6783451209876543" -> "************6543"
func MaskPSID(psid string) string {
	return maskString(psid, constants.DefaultPSIDMaskLength)
}

// MaskToken masks a secret. Tokens shorter than 12 characters are fully masked.
// Example: "EAAGm0PX4ZCpsBAKZA5d" -> "***ZA5d"
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) < 12 {
		return strings.Repeat("*", len(token))
	}
	return "***" + token[len(token)-constants.DefaultTokenMaskLength:]
}

// MaskURL masks credential query parameters in a URL
// Example: "https://graph.facebook.com/v2.6/me/messages?access_token=EAAG...ZA5d" -> "...?access_token=%2A%2A%2AZA5d"
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for _, key := range []string{"access_token", "apikey", "api_key", "hub.verify_token"} {
		if v := q.Get(key); v != "" {
			q.Set(key, MaskToken(v))
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// MaskText truncates free text from users so logs never carry a full message
// Example: "show me pictures of cats" -> "show me pi…"
func MaskText(text string, keep int) string {
	runes := []rune(text)
	if len(runes) <= keep {
		return text
	}
	return string(runes[:keep]) + "…"
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}
		switch k {
		case "psid", "sender_id", "recipient_id", "user_id":
			masked[k] = MaskPSID(s)
		case "access_token", "verify_token", "token", "api_key", "apikey":
			masked[k] = MaskToken(s)
		case "url", "endpoint":
			masked[k] = MaskURL(s)
		case "text", "query", "challenge":
			masked[k] = MaskText(s, 10)
		default:
			masked[k] = v
		}
	}

	return masked
}
