package session

import (
	"path/filepath"
	"strings"
)

// fallbackPrefix is used when a front-end registers without a project root.
const fallbackPrefix = "session"

// maxPrefixLen caps label prefixes so Telegram topic titles stay readable.
const maxPrefixLen = 16

// labelPrefix derives a short, human-readable prefix from a project root
// path. "/home/alice/src/myproj" becomes "myproj". The result contains only
// lowercase alphanumerics and dashes.
func labelPrefix(projectRoot string) string {
	if projectRoot == "" {
		return fallbackPrefix
	}

	base := strings.ToLower(filepath.Base(filepath.Clean(projectRoot)))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '_', r == ' ', r == '.':
			b.WriteRune('-')
		}
	}

	prefix := strings.Trim(b.String(), "-")
	if prefix == "" {
		return fallbackPrefix
	}
	if len(prefix) > maxPrefixLen {
		prefix = prefix[:maxPrefixLen]
	}
	return prefix
}
