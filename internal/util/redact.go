package util

import "regexp"

var (
	keyValuePattern = regexp.MustCompile(`(?i)(api_key|apikey|secret|token|password)\s*[:=]\s*([^\s"']+)`)
	bearerPattern   = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]{16,}`)
	skPattern       = regexp.MustCompile(`(?i)sk-[a-z0-9]{20,}`)
)

// RedactSecrets removes likely secrets from text before it reaches
// logs or persisted run records.
func RedactSecrets(input string) string {
	out := keyValuePattern.ReplaceAllString(input, `$1=[REDACTED]`)
	out = bearerPattern.ReplaceAllString(out, "[REDACTED BEARER]")
	out = skPattern.ReplaceAllString(out, "[REDACTED KEY]")
	return out
}
