package interactor

import (
	"encoding/json"

	"bridgewallet.io/bridge-wallet/internal/jsonrpc"
	"bridgewallet.io/bridge-wallet/internal/session"
)

// SessionRequestParam is the first element of a wc_sessionRequest params
// array: the peer introducing itself and what it wants from the wallet.
type SessionRequestParam struct {
	PeerID                   string            `json:"peerId"`
	PeerMeta                 *session.PeerMeta `json:"peerMeta"`
	ChainID                  *jsonrpc.ChainID  `json:"chainId,omitempty"`
	ChainType                string            `json:"chainType,omitempty"`
	AddressRequiredCoinTypes []int             `json:"addressRequiredCoinTypes,omitempty"`
}

// ApproveSessionResult is the result object sent back on approveSession.
type ApproveSessionResult struct {
	Approved bool              `json:"approved"`
	ChainID  jsonrpc.ChainID   `json:"chainId"`
	Accounts []string          `json:"accounts"`
	PeerID   string            `json:"peerId"`
	PeerMeta *session.PeerMeta `json:"peerMeta"`
}

// SessionUpdateParam is the single element of a sessionUpdate params array.
// Nil ChainID and Accounts marshal as null, which is what a kill update
// carries.
type SessionUpdateParam struct {
	Approved bool             `json:"approved"`
	ChainID  *jsonrpc.ChainID `json:"chainId"`
	Accounts []string         `json:"accounts"`
}

// AckMessage is a relay-level delivery acknowledgement.
type AckMessage struct {
	Topic     string
	Payload   string
	Timestamp *uint64
}

// Callbacks is the observer surface the interactor raises into the
// application. All fields are optional; the interactor never retains
// anything beyond calling them. Inbound-event callbacks fire on the socket
// receive goroutine; OnConnected and OnDisconnect can also fire on the
// goroutine that called Connect, Disconnect or KillSession, or on the
// handshake watchdog's timer goroutine. Callbacks must not block on
// interactor operations.
type Callbacks struct {
	OnSessionRequest func(id int64, param SessionRequestParam)
	OnSessionKilled  func()
	OnConnected      func()
	OnDisconnect     func(err error)
	OnCustomRequest  func(id int64, raw json.RawMessage, timestamp *uint64)
	OnError          func(err error)
	OnReceiveACK     func(msg AckMessage)
}

func (c *Callbacks) fireSessionRequest(id int64, param SessionRequestParam) {
	if c != nil && c.OnSessionRequest != nil {
		c.OnSessionRequest(id, param)
	}
}

func (c *Callbacks) fireSessionKilled() {
	if c != nil && c.OnSessionKilled != nil {
		c.OnSessionKilled()
	}
}

func (c *Callbacks) fireConnected() {
	if c != nil && c.OnConnected != nil {
		c.OnConnected()
	}
}

func (c *Callbacks) fireDisconnect(err error) {
	if c != nil && c.OnDisconnect != nil {
		c.OnDisconnect(err)
	}
}

func (c *Callbacks) fireCustomRequest(id int64, raw json.RawMessage, timestamp *uint64) {
	if c != nil && c.OnCustomRequest != nil {
		c.OnCustomRequest(id, raw, timestamp)
	}
}

func (c *Callbacks) fireError(err error) {
	if c != nil && c.OnError != nil {
		c.OnError(err)
	}
}

func (c *Callbacks) fireReceiveACK(msg AckMessage) {
	if c != nil && c.OnReceiveACK != nil {
		c.OnReceiveACK(msg)
	}
}
