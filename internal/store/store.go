package store

import (
	"bridgewallet.io/bridge-wallet/internal/session"
)

// Record is what survives a process restart: the pairing descriptor plus the
// peer identity learned at handshake. The interactor reads it at connect time
// to resume without a new handshake; writing is the application's call.
type Record struct {
	Session  *session.Session
	PeerID   string
	PeerMeta *session.PeerMeta
}

// SessionStore is the persistence contract the core consumes. Load returns
// (nil, nil) on a miss.
type SessionStore interface {
	Load(topic string) (*Record, error)
	Store(topic string, record *Record) error
	Remove(topic string) error
}
