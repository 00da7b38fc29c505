package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"messengerrelay/internal/constants"
	"messengerrelay/internal/errors"
)

// ValidatePSID validates a page-scoped user ID
func ValidatePSID(psid string) error {
	if psid == "" {
		return errors.NewValidationError("psid", "cannot be empty")
	}

	if len(psid) > constants.MaxPSIDLength {
		return errors.NewValidationError("psid", fmt.Sprintf("too long (max %d characters)", constants.MaxPSIDLength))
	}

	for _, char := range psid {
		if !unicode.IsDigit(char) && !unicode.IsLetter(char) && char != '_' && char != '-' {
			return errors.NewValidationError("psid", "must contain only letters, digits, underscores, and dashes")
		}
	}

	return nil
}

// ValidateUserText validates free text before it is forwarded to an external API
func ValidateUserText(text string) error {
	if text == "" {
		return errors.NewValidationError("text", "cannot be empty")
	}

	if !utf8.ValidString(text) {
		return errors.NewValidationError("text", "must be valid UTF-8")
	}

	return nil
}

// ValidateHTTPURL validates an absolute http(s) endpoint URL
func ValidateHTTPURL(raw, fieldName string) error {
	if raw == "" {
		return errors.NewValidationError(fieldName, "cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.NewValidationError(fieldName, fmt.Sprintf("invalid URL: %v", err))
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewValidationError(fieldName, "scheme must be http or https")
	}

	if u.Host == "" {
		return errors.NewValidationError(fieldName, "host cannot be empty")
	}

	return nil
}

// ValidateConfigPath rejects config paths that traverse out of the working directory
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.NewValidationError("config path", "cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return errors.NewValidationError("config path", "directory traversal is not allowed")
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.NewValidationError(fieldName, "must be at least 1 second")
	}

	if timeoutSec > 300 {
		return errors.NewValidationError(fieldName, "too large (max 300 seconds)")
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.NewValidationError(fieldName, fmt.Sprintf("too small (min %d)", min))
	}

	if value > max {
		return errors.NewValidationError(fieldName, fmt.Sprintf("too large (max %d)", max))
	}

	return nil
}
