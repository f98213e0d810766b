// Package escape implements RFC8259 section 7 string escaping for the
// canonical event preimage. The encoding must be byte-for-byte reproducible
// because the event ID is a hash over it, so the stdlib json encoder, which
// additionally escapes HTML-significant characters, cannot be used here.
package escape

// String appends s to dst as a double-quote wrapped JSON string, escaping the
// quotation mark, reverse solidus and the control characters U+0000 through
// U+001F, and nothing else. The input is assumed to be valid UTF-8 and is
// iterated bytewise so multibyte sequences pass through untouched.
func String(dst []byte, s string) []byte {
	const hexChars = "0123456789abcdef"
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			dst = append(dst, '\\', '"')
		case c == '\\':
			dst = append(dst, '\\', '\\')
		case c == '\b':
			dst = append(dst, '\\', 'b')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\f':
			dst = append(dst, '\\', 'f')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0',
				hexChars[c>>4], hexChars[c&0xf])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}
