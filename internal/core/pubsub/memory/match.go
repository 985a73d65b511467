package memory

import "strings"

// matchSubject reports whether subject matches pattern. A "*" token matches
// exactly one subject token; a trailing ">" matches one or more.
func matchSubject(pattern, subject string) bool {
	if pattern == "" || subject == "" {
		return false
	}
	for {
		p, pRest, pMore := strings.Cut(pattern, ".")
		if p == ">" {
			return !pMore
		}
		s, sRest, sMore := strings.Cut(subject, ".")
		if p != "*" && p != s {
			return false
		}
		if !pMore || !sMore {
			return pMore == sMore
		}
		pattern, subject = pRest, sRest
	}
}
