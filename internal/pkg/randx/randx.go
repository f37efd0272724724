/*
Package randx generates identifiers: UUIDs for persisted messages and storage keys,
ULIDs for live connections.
*/
package randx

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MessageID returns a UUID v4 string used as the server-assigned message id.
func MessageID() string {
	return uuid.New().String()
}

// ObjectKey returns a storage key of the form "<prefix>/<uuid><ext>".
func ObjectKey(prefix, ext string) string {
	return prefix + "/" + uuid.New().String() + ext
}

// ConnectionID returns a ULID for a websocket connection. ULIDs sort by creation time,
// which keeps connection ids readable in logs.
func ConnectionID(now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// IsValidID reports whether id parses as a UUID.
func IsValidID(id string) bool {
	return uuid.Validate(id) == nil
}
