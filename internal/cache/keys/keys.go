// Package keys builds Redis keys for cached geometries.
package keys

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
)

const DefaultNamespace = "geom"

// Geometry returns "<namespace>:<TYPE>:<id>", e.g. "geom:WAY:12".
func Geometry(namespace string, k geometry.ElementKey) string {
	var b strings.Builder
	b.WriteString(Prefix(namespace))
	b.WriteString(k.ColumnValue())
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(k.ID, 10))
	return b.String()
}

// Prefix is the common prefix of every key in namespace, including the
// trailing separator.
func Prefix(namespace string) string {
	ns := sanitizeNamespace(strings.TrimSpace(namespace))
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + ":"
}

func sanitizeNamespace(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return strings.TrimRight(b.String(), ":")
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
