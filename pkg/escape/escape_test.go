package escape

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	for _, tc := range []struct {
		in, out string
	}{
		{``, `""`},
		{`plain`, `"plain"`},
		{"with \"quotes\"", `"with \"quotes\""`},
		{`back\slash`, `"back\\slash"`},
		{"tab\tnewline\n", `"tab\tnewline\n"`},
		{"\r\f\b", `"\r\f\b"`},
		{string([]byte{0x01, 0x1f}), `""`},
		{"präзднёw 汉字", `"präзднёw 汉字"`},
	} {
		require.Equal(t, tc.out, string(String(nil, tc.in)))
	}
}

// every escaped string must parse back to the original under a standard JSON
// decoder, since relays read the canonical form with one.
func TestStringRoundTrip(t *testing.T) {
	for _, in := range []string{
		"", "hello", "a\"b\\c", "\x00\x01\x02", "line\nbreak", "emoji 🤙",
		"<script>&amp;</script>", // must NOT be html-escaped
	} {
		var out string
		require.NoError(t, json.Unmarshal(String(nil, in), &out))
		require.Equal(t, in, out)
	}
}
