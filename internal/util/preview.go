package util

import "strings"

// Preview returns a short preview of text by limiting lines and bytes.
// Used when echoing tool output to the terminal.
func Preview(text string, maxLines int, maxBytes int) string {
	if text == "" {
		return ""
	}
	var (
		out   []string
		bytes int
	)
	for _, line := range strings.Split(text, "\n") {
		if maxLines > 0 && len(out) >= maxLines {
			break
		}
		sep := 0
		if len(out) > 0 {
			sep = 1
		}
		if maxBytes > 0 && bytes+sep+len(line) > maxBytes {
			break
		}
		bytes += sep + len(line)
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
