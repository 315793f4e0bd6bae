package session

import (
	"bytes"
)

// Source labels which pairing scheme produced the session descriptor.
type Source string

const (
	SourceWalletConnect Source = "wc"
	SourceExtension     Source = "cwe"
	SourceUnknown       Source = "unknown"
)

// Session is the immutable pairing identity shared out-of-band via QR code.
// Key is the 32-byte symmetric key both peers encrypt envelopes with.
type Session struct {
	Topic            string
	Version          string
	Bridge           string
	Key              []byte
	NumericalVersion float64
	Source           Source
	IsExtension      bool
}

// Equal reports whether two descriptors identify the same pairing.
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Topic == other.Topic &&
		s.Version == other.Version &&
		s.Bridge == other.Bridge &&
		bytes.Equal(s.Key, other.Key)
}

// PeerMeta describes the remote dApp or extension, set once at handshake.
type PeerMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}
