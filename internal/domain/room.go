package domain

import "strings"

// NormalizeRoomCode trims and upper-cases a room code. Room codes are
// case-insensitive on the wire; the normalized form is the map key.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
