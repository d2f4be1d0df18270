package common

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewTaskID generates a unique batch task ID with the "task_" prefix
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewArtifactID generates a unique artifact ID with the "art_" prefix
func NewArtifactID() string {
	return "art_" + uuid.New().String()
}

// ItemIDFromURL derives a stable item ID from a URL's content hash.
// Used when the client does not assign an ID, so repeated requests for
// the same URL map to the same item.
func ItemIDFromURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "item_" + hex.EncodeToString(sum[:8])
}
