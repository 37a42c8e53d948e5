package domain

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
)

// RoomID is a matchmaking cohort token: sha1 over an independent random
// draw, rendered as 40 hex chars. One RoomID is one generation: the member
// list lives in the registry, the token only carries identity. Room ids
// must not be guessable, so the draw comes from crypto/rand.
type RoomID string

func NewRoomID() RoomID {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		// without crypto/rand the process cannot mint tokens at all
		panic(err)
	}
	sum := sha1.Sum(seed)
	return RoomID(hex.EncodeToString(sum[:]))
}
