package archive

import (
	"fmt"
	"strings"

	"packsync/internal/services"
)

// CleanName validates an entry name and returns it as a relative,
// slash-separated path. Both '/' and '\' separate segments. Names that are
// empty, absolute, drive-qualified, contain control characters, or have an
// empty, "." or ".." segment are rejected rather than rewritten. A single
// trailing separator marks a directory and is dropped.
func CleanName(name string) (string, error) {
	if name == "" {
		return "", reject(name, "empty name")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", reject(name, "control character in name")
		}
	}
	normalized := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(normalized, "/") {
		return "", reject(name, "absolute path")
	}
	normalized = strings.TrimSuffix(normalized, "/")
	segments := strings.Split(normalized, "/")
	if isDriveLetter(segments[0]) {
		return "", reject(name, "drive-qualified path")
	}
	for _, seg := range segments {
		switch seg {
		case "":
			return "", reject(name, "empty path segment")
		case ".", "..":
			return "", reject(name, fmt.Sprintf("%q path segment", seg))
		}
	}
	return strings.Join(segments, "/"), nil
}

func isDriveLetter(seg string) bool {
	if len(seg) < 2 || seg[1] != ':' {
		return false
	}
	c := seg[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func hasTrailingSeparator(name string) bool {
	return strings.HasSuffix(name, "/") || strings.HasSuffix(name, `\`)
}

func reject(name, reason string) error {
	return services.Wrap(services.ErrEntryRejected, "archive", "validate", fmt.Sprintf("%s: %q", reason, name), nil)
}
