package relay

import (
	"encoding/json"
	"strings"

	"bridgewallet.io/bridge-wallet/pkg/envelope"
	"bridgewallet.io/bridge-wallet/pkg/errors"
	"bridgewallet.io/bridge-wallet/pkg/log"
)

// Frame types routed by the bridge.
const (
	TypePub = "pub"
	TypeSub = "sub"
	TypeAck = "ack"
)

// Frame is the relay wire envelope. Payload is the stringified encryption
// envelope for pub frames and empty for sub frames.
type Frame struct {
	Topic     string  `json:"topic"`
	Type      string  `json:"type"`
	Payload   string  `json:"payload"`
	Timestamp *uint64 `json:"timestamp"`
	Silent    bool    `json:"silent,omitempty"`
}

func NewSub(topic string) *Frame {
	return &Frame{Topic: topic, Type: TypeSub, Payload: "", Silent: true}
}

func NewPub(topic, payload string, silent bool) *Frame {
	return &Frame{Topic: topic, Type: TypePub, Payload: payload, Silent: silent}
}

func NewAck(topic string) *Frame {
	return &Frame{Topic: topic, Type: TypeAck, Payload: "", Silent: true}
}

// FromBytes decodes an inbound frame. The historical wire embeds the
// encryption envelope as a JSON string, but some bridges deliver it as a bare
// object; both shapes are normalized into the string payload.
func FromBytes(data []byte) (*Frame, error) {
	var aux struct {
		Topic     string          `json:"topic"`
		Type      string          `json:"type"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp *uint64         `json:"timestamp"`
		Silent    bool            `json:"silent"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal relay frame")
	}
	frame := &Frame{
		Topic:     aux.Topic,
		Type:      aux.Type,
		Timestamp: aux.Timestamp,
		Silent:    aux.Silent,
	}
	payload := strings.TrimSpace(string(aux.Payload))
	switch {
	case payload == "" || payload == "null":
	case strings.HasPrefix(payload, `"`):
		var s string
		if err := json.Unmarshal(aux.Payload, &s); err != nil {
			return nil, errors.WrapAndReport(err, "unquote relay frame payload")
		}
		frame.Payload = s
	default:
		frame.Payload = payload
	}
	return frame, nil
}

func (f *Frame) Marshal() []byte {
	data, err := json.Marshal(f)
	if err != nil {
		log.Errorf("marshal relay frame:%v", err)
	}
	return data
}

// Envelope parses the embedded encryption envelope. Returns nil for frames
// without a payload.
func (f *Frame) Envelope() (*envelope.Envelope, error) {
	if f.Payload == "" {
		return nil, nil
	}
	return envelope.FromBytes([]byte(f.Payload))
}
