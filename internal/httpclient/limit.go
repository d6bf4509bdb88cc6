package httpclient

import (
	"io"
	"strings"
	"unicode/utf8"
)

// ReadBodySnippet reads at most limit bytes of a response body for use in
// error messages. The read is best-effort: read failures and oversized
// bodies yield whatever prefix was obtained, trimmed to a valid UTF-8
// boundary so a truncated multi-byte rune never leaks into the message.
func ReadBodySnippet(r io.Reader, limit int64) string {
	if limit <= 0 {
		return ""
	}

	data, _ := io.ReadAll(&io.LimitedReader{R: r, N: limit})
	for len(data) > 0 && !utf8.Valid(data) {
		data = data[:len(data)-1]
	}
	return strings.TrimSpace(string(data))
}
