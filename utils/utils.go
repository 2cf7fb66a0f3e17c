package utils

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// PreviewLength is the number of payload bytes kept by Preview.
const PreviewLength = 32

// ContainsNonASCII checks if a byte string contains any byte above 127.
func ContainsNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// Preview renders the first max bytes of b as a quoted, printable string.
// Control and 8-bit bytes are escaped; longer input is cut and marked
// with "...".
func Preview(b []byte, max int) string {
	truncated := false
	if max > 0 && len(b) > max {
		b = b[:max]
		truncated = true
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		switch {
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < 0x20 || c >= 0x7f:
			sb.WriteString(`\x`)
			if c < 0x10 {
				sb.WriteByte('0')
			}
			sb.WriteString(strconv.FormatUint(uint64(c), 16))
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	if truncated {
		sb.WriteString("...")
	}
	return sb.String()
}

// Visible makes line endings of a payload visible while keeping its line
// structure: every line keeps its own "\r"/"\n" markers and lines are joined
// with a real newline. Other bytes are kept as-is.
func Visible(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range b {
		switch c {
		case '\r':
			sb.WriteString(`\r`)
		case '\n':
			sb.WriteString(`\n`)
			if i < len(b)-1 {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// NewID creates a unique, time-ordered identifier.
func NewID() string {
	return ulid.Make().String()
}
