package room

import (
	"math/rand/v2"
	"strings"
)

// CodeAlphabet omits characters that are easy to confuse (I, O, 0, 1).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a room code.
const CodeLength = 6

// NewRoomCode returns a random room code. Uniqueness is enforced by the store.
func NewRoomCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[rand.IntN(len(CodeAlphabet))])
	}
	return b.String()
}

// NormalizeCode upper-cases and trims user input so lookups are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode reports whether code has the shape of a room code.
func ValidRoomCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
