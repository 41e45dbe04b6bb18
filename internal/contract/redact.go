package contract

import "strings"

// redactedPlaceholder replaces the value of any env entry whose key matches
// a secret pattern. Redaction is irreversible: the original value is never
// retained anywhere in the RCM.
const redactedPlaceholder = "***REDACTED***"

var defaultSecretPatterns = []string{
	"SECRET", "TOKEN", "PASSWORD", "KEY", "PRIVATE", "CREDENTIAL", "AUTH",
}

// secretMatcher tests an env key against a case-insensitive substring list.
type secretMatcher struct {
	patterns []string
}

func newSecretMatcher(patterns []string) *secretMatcher {
	if len(patterns) == 0 {
		patterns = defaultSecretPatterns
	}
	upper := make([]string, len(patterns))
	for i, p := range patterns {
		upper[i] = strings.ToUpper(p)
	}
	return &secretMatcher{patterns: upper}
}

func (m *secretMatcher) matches(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, p := range m.patterns {
		if strings.Contains(upperKey, p) {
			return true
		}
	}
	return false
}

// redactEnv replaces value with the fixed placeholder if key matches any
// configured secret pattern; otherwise it returns value unchanged.
func (m *secretMatcher) redactEnv(key, value string) string {
	if m.matches(key) {
		return redactedPlaceholder
	}
	return value
}
