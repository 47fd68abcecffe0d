package cache

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"

	"github.com/upb/llm-chat-gateway/models"
)

// keyMaterial is the canonical form hashed into a cache key. Field order is
// fixed by the struct, so equal inputs always serialize identically.
type keyMaterial struct {
	Scope      string           `json:"scope,omitempty"`
	Transcript []models.Message `json:"transcript"`
	Message    string           `json:"message"`
}

// Key derives the content-addressed cache key for a transcript plus the
// incoming message. The transcript and the message are hashed together, so
// moving text between them changes the key. scope partitions otherwise
// identical conversations; the pipeline passes the target model.
func Key(scope string, transcript models.Transcript, message string) string {
	turns := []models.Message(transcript)
	if turns == nil {
		turns = []models.Message{}
	}
	raw, err := json.Marshal(keyMaterial{Scope: scope, Transcript: turns, Message: message})
	if err != nil {
		// Message holds only strings; marshal cannot fail
		panic(err)
	}
	sum := blake3.Sum256(raw)
	return "response:" + hex.EncodeToString(sum[:])
}
