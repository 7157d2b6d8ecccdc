// Package internal carries helpers shared by the entry points.
package internal

import "fmt"

// CharacterRune parses a single-rune environment value, used for the
// moderation replacement character.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CENSOR_CHAR must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
