package notifylist

import "strings"

// WildcardMarker turns a pattern into a prefix match. Every marker is removed before
// matching, wherever it appears.
const WildcardMarker = '*'

// HasWildcard reports whether pattern contains at least one wildcard marker.
func HasWildcard(pattern string) bool {
	return strings.IndexByte(pattern, WildcardMarker) >= 0
}

// StripWildcards returns pattern with every wildcard marker removed.
func StripWildcards(pattern string) string {
	if !HasWildcard(pattern) {
		return pattern
	}
	return strings.ReplaceAll(pattern, string(WildcardMarker), "")
}

// MatchesExact reports whether key is byte-equal to pattern.
func MatchesExact(key, pattern string) bool {
	return key == pattern
}

// MatchesWildcard reports whether key starts with pattern's literal prefix.
// Patterns without a marker never match here, and neither does a pattern that is
// nothing but markers.
func MatchesWildcard(key, pattern string) bool {
	if !HasWildcard(pattern) {
		return false
	}
	return matchesPrefix(key, StripWildcards(pattern))
}

func matchesPrefix(key, prefix string) bool {
	return prefix != "" && strings.HasPrefix(key, prefix)
}
