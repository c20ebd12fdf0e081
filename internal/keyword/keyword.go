// Package keyword decides whether a player's utterance satisfies a quest step.
//
// Matching is a case-insensitive substring test. Accents and punctuation are compared as they are.
package keyword

import "strings"

// Matches reports whether keyword occurs in utterance, ignoring case.
func Matches(utterance, keyword string) bool {
	return strings.Contains(strings.ToLower(utterance), strings.ToLower(keyword))
}
