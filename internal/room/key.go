// Package room tracks which connections are subscribed to which rooms and
// provides the room key conventions: the always-present global room, ad-hoc
// named rooms, and canonical private pairwise rooms.
package room

import "strings"

// Global is the default room every joined connection is subscribed to. It is
// the only room that exists independently of membership.
const Global = "global"

// privatePrefix marks pairwise room keys.
const privatePrefix = "private:"

// PrivateKey returns the canonical room key for the pair of identity ids.
// The ids are sorted lexicographically before joining so both participants
// compute the same key independently of argument order.
func PrivateKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return privatePrefix + a + ":" + b
}

// IsPrivate reports whether the room key names a private pairwise room.
func IsPrivate(roomID string) bool {
	return strings.HasPrefix(roomID, privatePrefix)
}
