package cli

import (
	"fmt"
	"io"
	"strings"
)

func printInfo(out io.Writer, format string, args ...any) {
	printTagged(out, "[*]", format, args...)
}

func printTagged(out io.Writer, tag, format string, args ...any) {
	fmt.Fprintf(out, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
