package http

import "strings"

// MatchGlob reports whether uri matches pattern using the grammar
// spec.md §4.7 specifies: '?' matches any single character, '*' matches
// any run of characters excluding '/', '#' matches any run including
// '/', and everything else must match literally. This is a small
// recursive-backtracking matcher rather than the teacher's radix router
// (core/router/radix.go), since glob patterns need arbitrary wildcard
// backtracking that a prefix trie doesn't express.
func MatchGlob(pattern, uri string) bool {
	return matchGlob(pattern, uri)
}

func matchGlob(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		case '*':
			return matchStar(pattern[1:], s, false)
		case '#':
			return matchStar(pattern[1:], s, true)
		default:
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return len(s) == 0
}

// matchStar tries every split point for a '*' or '#' wildcard, shortest
// match first. For '*' (includeSlash false) the run may not cross a '/'.
func matchStar(restPattern, s string, includeSlash bool) bool {
	limit := len(s)
	if !includeSlash {
		if idx := strings.IndexByte(s, '/'); idx >= 0 {
			limit = idx
		}
	}
	for i := 0; i <= limit; i++ {
		if matchGlob(restPattern, s[i:]) {
			return true
		}
	}
	return false
}
