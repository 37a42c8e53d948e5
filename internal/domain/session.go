// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// SessionID identifies one connected client for the lifetime of its
// connection. Minted at upgrade, never reused. The gateway owns the
// session; the registry and the matchmaker reference it by id only.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}
