package models

import (
	"encoding/json"
	"time"
)

// OfflineSnapshot is the cached copy of session data that lets the client
// keep functioning without connectivity. It is overwritten wholesale on
// every refresh; there are no merge semantics.
type OfflineSnapshot struct {
	PreparedAt time.Time       `json:"preparedAt"`
	User       json.RawMessage `json:"user"`
}
