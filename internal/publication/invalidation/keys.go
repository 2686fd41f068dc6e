package invalidation

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const fragmentPrefix = "template.cache."

// FragmentKey derives the cache key of a rendered template fragment named
// name and varied on vary:
//
//	template.cache.<name>.<md5hex(urlquote(v1) ":" ... ":" urlquote(vn))>
//
// The digest of an empty vary list is the digest of the empty string.
func FragmentKey(name string, vary []string) string {
	quoted := make([]string, len(vary))
	for i, v := range vary {
		quoted[i] = urlQuote(v)
	}
	sum := md5.Sum([]byte(strings.Join(quoted, ":")))
	return fragmentPrefix + name + "." + hex.EncodeToString(sum[:])
}

// urlQuote percent-encodes the UTF-8 bytes of s, leaving ASCII letters,
// digits and "_.-/" untouched. "~" is encoded as %7E. Hex digits are uppercase.
func urlQuote(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '_', '.', '-', '/':
		return true
	}
	return false
}
