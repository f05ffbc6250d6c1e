package taskpool

import "strings"

// pyRepr renders s the way Python's repr() would render a str: single-quoted
// unless s contains a single quote and no double quote, in which case
// double-quoted, with backslashes and the chosen quote character escaped.
// Captured command stdout is rendered this way before being substituted
// into an output-extraction command, so it is always safe to inline into a
// new "sh -c" invocation.
func pyRepr(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch r {
		case rune(quote):
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}
