package anydb

import (
	"github.com/google/uuid"
)

// SessionID is a thin wrapper over github.com/google/uuid.UUID identifying
// one Database.Open call, used to tag log lines when more than one process
// has the same directory open (e.g. a reader and anydbctl).
type SessionID uuid.UUID

// NewSessionID returns a new randomly generated SessionID.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// String returns the canonical string representation of the SessionID.
func (id SessionID) String() string {
	return uuid.UUID(id).String()
}
