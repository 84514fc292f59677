package server

import (
	"path/filepath"
	"regexp"
	"strings"
)

var drivePattern = regexp.MustCompile(`^([A-Za-z]):[\\/]?`)

// SanitizePath cleans a user-supplied path before it touches the filesystem.
// Surrounding quotes, the characters <>"|?* and control characters are
// removed, runs of spaces collapse, both slash styles become the OS
// separator, and trailing dots and spaces are trimmed from every component.
// A Windows drive letter and a leading root separator are kept. A path that
// is blank afterwards returns "".
func SanitizePath(p string) string {
	return sanitizePath(p, filepath.Separator)
}

func sanitizePath(p string, sep rune) string {
	p = strings.TrimSpace(p)
	if len(p) >= 2 && (p[0] == '"' && p[len(p)-1] == '"' || p[0] == '\'' && p[len(p)-1] == '\'') {
		p = p[1 : len(p)-1]
	}

	prefix := ""
	if m := drivePattern.FindStringSubmatch(p); m != nil {
		prefix = m[1] + ":" + string(sep)
		p = p[len(m[0]):]
	} else if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		prefix = string(sep)
	}

	p = strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`<>"|?*`, r):
			return -1
		case r <= 31, r >= 127 && r <= 159:
			return -1
		}
		return r
	}, p)

	for strings.Contains(p, "  ") {
		p = strings.ReplaceAll(p, "  ", " ")
	}
	p = strings.TrimSpace(p)

	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	cleaned := parts[:0]
	for _, part := range parts {
		if part = strings.TrimRight(part, ". "); part != "" {
			cleaned = append(cleaned, part)
		}
	}

	if len(cleaned) == 0 {
		if strings.TrimSpace(prefix) == "" || prefix == string(sep) {
			return ""
		}
		return prefix
	}

	return prefix + strings.Join(cleaned, string(sep))
}
