package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const roomDerivationPrefix = "p2pmentor-room:"

// DeriveRoom maps a session id to a stable, non-guessable meeting room and
// its join URL. The mapping is a one-way hash: the same session always
// yields the same room, and the room does not reveal the session id.
func DeriveRoom(sessionID, baseURL string) (roomID, joinURL string) {
	sum := sha256.Sum256([]byte(roomDerivationPrefix + sessionID))
	roomID = hex.EncodeToString(sum[:16])
	joinURL = strings.TrimRight(baseURL, "/") + "/rooms/" + roomID
	return roomID, joinURL
}
