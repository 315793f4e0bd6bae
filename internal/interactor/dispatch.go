package interactor

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"bridgewallet.io/bridge-wallet/internal/chains"
	"bridgewallet.io/bridge-wallet/internal/relay"
	"bridgewallet.io/bridge-wallet/pkg/envelope"
	"bridgewallet.io/bridge-wallet/pkg/errors"
	"bridgewallet.io/bridge-wallet/pkg/log"
)

// handleFrame branches on the relay frame type. Decode and decrypt failures
// reach the application through OnError and leave the connection up: the
// bridge happily forwards garbage from anyone who knows the topic.
func (i *Interactor) handleFrame(sock *relay.Socket, frame *relay.Frame) {
	switch frame.Type {
	case relay.TypeAck:
		i.Callbacks.fireReceiveACK(AckMessage{
			Topic:     frame.Topic,
			Payload:   frame.Payload,
			Timestamp: frame.Timestamp,
		})
	case relay.TypePub:
		sealed, err := frame.Envelope()
		if err != nil {
			i.Callbacks.fireError(err)
			return
		}
		if sealed == nil {
			i.Callbacks.fireError(errors.NewKind(errors.KindBadJSONRPCRequest, "pub frame without payload"))
			return
		}
		i.sendAck(sock)
		plain, err := envelope.Open(sealed, i.session.Key)
		if err != nil {
			i.Callbacks.fireError(err)
			return
		}
		log.Debugf("interactor - receive payload:%v", string(plain))
		i.dispatch(sock, plain, frame.Timestamp)
	default:
		log.Debugf("interactor - drop frame type %v on topic %v", frame.Type, frame.Topic)
	}
}

// sendAck acknowledges delivery on the client-id topic; the bridge retries
// unacked messages on reconnect.
func (i *Interactor) sendAck(sock *relay.Socket) {
	if err := sock.WriteFrame(relay.NewAck(i.clientID)); err != nil {
		log.Debugf("interactor - ack:%v", err)
	}
}

// dispatch routes a decrypted payload: known methods go to handleEvent,
// unknown methods with a numeric id surface as custom requests, the rest is
// dropped.
func (i *Interactor) dispatch(sock *relay.Socket, plain []byte, timestamp *uint64) {
	parsed := gjson.ParseBytes(plain)
	method := parsed.Get("method")
	idField := parsed.Get("id")
	id := idField.Int()

	if !method.Exists() {
		if idField.Exists() {
			i.Callbacks.fireCustomRequest(id, json.RawMessage(plain), timestamp)
			return
		}
		log.Debugf("interactor - drop payload without method or id")
		return
	}
	event, known := chains.EventFromMethod(method.String())
	if !known {
		if idField.Exists() && id > 0 {
			i.Callbacks.fireCustomRequest(id, json.RawMessage(plain), timestamp)
			return
		}
		log.Debugf("interactor - drop unhandled method %v", method.String())
		return
	}
	params := json.RawMessage(parsed.Get("params").Raw)
	i.handleEvent(sock, event, id, params, plain, timestamp)
}

func (i *Interactor) handleEvent(sock *relay.Socket, event chains.Event, id int64,
	params json.RawMessage, plain []byte, timestamp *uint64) {
	if event.FamilyOf() == chains.FamilySession {
		i.handleSessionEvent(sock, event, id, params, plain, timestamp)
		return
	}
	handler := i.chainHandler(event)
	if handler == nil {
		if id > 0 {
			i.Callbacks.fireCustomRequest(id, json.RawMessage(plain), timestamp)
		}
		return
	}
	if err := handler.Handle(event, id, params, timestamp); err != nil {
		i.Callbacks.fireError(err)
	}
}

// chainHandler picks the configured handler for a non-session event, nil
// when the application did not attach one.
func (i *Interactor) chainHandler(event chains.Event) chains.Handler {
	switch event.FamilyOf() {
	case chains.FamilyBinance:
		if i.Binance != nil {
			return i.Binance
		}
	case chains.FamilyTrust:
		if i.Trust != nil {
			return i.Trust
		}
	case chains.FamilyCosmos:
		if i.Cosmos != nil {
			return i.Cosmos
		}
	case chains.FamilyEthereum:
		if i.Ethereum != nil {
			return i.Ethereum
		}
	}
	return nil
}

func (i *Interactor) handleSessionEvent(sock *relay.Socket, event chains.Event, id int64,
	params json.RawMessage, plain []byte, timestamp *uint64) {
	switch {
	case event.IsSessionRequest():
		var decoded []SessionRequestParam
		if err := json.Unmarshal(params, &decoded); err != nil || len(decoded) == 0 {
			i.Callbacks.fireError(errors.NewKind(errors.KindBadJSONRPCRequest, "malformed session request params"))
			return
		}
		param := decoded[0]
		i.lock.Lock()
		i.handshakeID = id
		i.peerMeta = param.PeerMeta
		i.chainType = param.ChainType
		timer := i.handshakeTimer
		i.handshakeTimer = nil
		i.lock.Unlock()
		if timer != nil {
			timer.Stop()
		}
		i.setPeerID(sock, param.PeerID)
		log.Infof("interactor - session request %v from peer %v", id, param.PeerID)
		i.Callbacks.fireSessionRequest(id, param)
	case event.IsSessionUpdate():
		var decoded []SessionUpdateParam
		if err := json.Unmarshal(params, &decoded); err != nil || len(decoded) == 0 {
			i.Callbacks.fireError(errors.NewKind(errors.KindBadJSONRPCRequest, "malformed session update params"))
			return
		}
		if decoded[0].Approved {
			log.Debugf("interactor - session update for topic %v", i.session.Topic)
			return
		}
		// The peer ended the session; same semantics as a local kill.
		log.Infof("interactor - session closed by peer for topic %v", i.session.Topic)
		i.userCancelled.Store(true)
		i.fireKilledOnce()
		i.drop(nil, false)
	case event == chains.EventDCKillSession:
		i.userCancelled.Store(true)
		i.fireKilledOnce()
		i.drop(nil, false)
	case event == chains.EventDCInstantRequest:
		// No handshake semantics are defined for the extension's instant
		// flow; the application implements it over the custom surface.
		i.Callbacks.fireCustomRequest(id, json.RawMessage(plain), timestamp)
	}
}
