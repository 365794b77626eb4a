package lamp

import (
	"regexp"
	"strconv"
)

var digitsRe = regexp.MustCompile(`\d+`)

// ResolveChannel maps a table to the relay channel its lamp is wired to.
//
// An explicitly configured channel always wins; renaming a table never moves
// its lamp once a channel is set. Without one, the first run of digits in the
// display name is used ("Meja 3" -> 3), and a name with no digits falls back
// to the table's one-based position in the name-ordered listing. The position
// fallback is not stable across reorderings and exists only for tables
// migrated without a channel assignment.
func ResolveChannel(explicit int, name string, position int) int {
	if explicit > 0 {
		return explicit
	}

	if m := digitsRe.FindString(name); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n
		}
	}

	if position < 0 {
		position = 0
	}
	return position + 1
}
