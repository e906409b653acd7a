package upstream

import (
	"net/http"
	"strings"
)

// SplitSetCookie expands Set-Cookie values that were joined with commas
// into one value per cookie. A comma only separates cookies when it is
// followed by a name=value pair, so the comma inside an Expires date stays.
func SplitSetCookie(values []string) []string {
	var out []string
	for _, v := range values {
		start := 0
		for i := 0; i < len(v); i++ {
			if v[i] != ',' || !startsCookie(v[i+1:]) {
				continue
			}
			if part := strings.TrimSpace(v[start:i]); part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
		if part := strings.TrimSpace(v[start:]); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func startsCookie(s string) bool {
	s = strings.TrimLeft(s, " \t")
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '=':
			return i > 0
		case c == ';' || c == ',' || c == ' ' || c == '\t' || c == '"':
			return false
		}
	}
	return false
}

// CopySetCookies re-emits every upstream cookie as its own header on dst.
func CopySetCookies(dst http.Header, src http.Header) {
	for _, c := range SplitSetCookie(src.Values("Set-Cookie")) {
		dst.Add("Set-Cookie", c)
	}
}
