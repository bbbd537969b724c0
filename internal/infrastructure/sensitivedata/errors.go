package sensitivedata

import (
	"fmt"
	"strings"
)

// ValueProvider supplies the set of sensitive values that must never reach
// an error message verbatim. *Provider satisfies this interface.
type ValueProvider interface {
	AllValues() []string
}

// SafeError wraps an error, redacting any sensitive values in the message.
func SafeError(err error, provider ValueProvider) error {
	if err == nil {
		return nil
	}
	if provider == nil {
		return err
	}

	msg := err.Error()
	for _, secret := range provider.AllValues() {
		if secret != "" && strings.Contains(msg, secret) {
			msg = strings.ReplaceAll(msg, secret, "[REDACTED]")
		}
	}

	if msg == err.Error() {
		return err // No redaction needed, return original error to preserve type
	}

	return fmt.Errorf("%s", msg)
}
