package downloader

import (
	"strings"
	"unicode"
)

// SanitizeTitle turns a source title into a safe file name stem. Quotes and control
// characters are dropped and path separators become underscores. An empty result
// becomes DefaultTitle. SanitizeTitle(SanitizeTitle(s)) == SanitizeTitle(s).
func SanitizeTitle(title string) string {
	var b strings.Builder

	b.Grow(len(title))

	for _, r := range title {
		switch {
		case r == '"' || r == '\'':
		case r == '/' || r == '\\':
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}

	s := strings.TrimSpace(b.String())
	if s == "" {
		return DefaultTitle
	}

	return s
}

// ContentDisposition builds an attachment header carrying filename as an RFC 5987
// UTF-8 extended parameter.
func ContentDisposition(filename string) string {
	return "attachment; filename*=UTF-8''" + encodeExtValue(filename)
}

// encodeExtValue percent-encodes every byte outside the RFC 5987 attr-char set.
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)

			continue
		}

		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}

	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
