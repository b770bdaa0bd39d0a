package callback

import "github.com/waskosky/codex/internal/logsanitize"

// sanitizeLog sanitizes a string for safe inclusion in structured log output
// before logging external HTTP input.
func sanitizeLog(s string) string {
	return logsanitize.Sanitize(s)
}

// redactLog keeps only a prefix of secrets such as codes and state values.
func redactLog(s string) string {
	return logsanitize.Redact(s)
}
