package identity

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerateSessionID generates a unique session ID using ULID.
// Format: "ses_" + ulid().
func GenerateSessionID() string {
	return "ses_" + generateULID()
}

// GenerateQuestionID generates a unique question ID using ULID.
// Format: "q_" + ulid().
func GenerateQuestionID() string {
	return "q_" + generateULID()
}

// GenerateClientID generates a unique IPC client connection ID using ULID.
// Format: "cli_" + ulid().
func GenerateClientID() string {
	return "cli_" + generateULID()
}

// GenerateEventID generates a unique event ID using ULID.
// Format: "evt_" + ulid().
func GenerateEventID() string {
	return "evt_" + generateULID()
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// generateULID creates a new ULID string. ULIDs sort by creation time, which
// keeps ID ordering consistent with creation ordering.
func generateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
