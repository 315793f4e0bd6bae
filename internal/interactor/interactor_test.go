package interactor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgewallet.io/bridge-wallet/internal/chains"
	"bridgewallet.io/bridge-wallet/internal/jsonrpc"
	"bridgewallet.io/bridge-wallet/internal/relay"
	"bridgewallet.io/bridge-wallet/internal/session"
	"bridgewallet.io/bridge-wallet/internal/store"
	"bridgewallet.io/bridge-wallet/pkg/envelope"
	"bridgewallet.io/bridge-wallet/pkg/errors"
)

const waitFor = 2 * time.Second

var testKey = []byte{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31,
}

// stubRelay is an in-process bridge: it accepts websocket connections,
// decodes every client frame onto a channel and lets tests push frames back.
type stubRelay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn

	frames    chan *relay.Frame
	raw       chan string
	connected chan *websocket.Conn
}

func newStubRelay() *stubRelay {
	s := &stubRelay{
		frames:    make(chan *relay.Frame, 64),
		raw:       make(chan string, 8),
		connected: make(chan *websocket.Conn, 4),
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.connected <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := relay.FromBytes(data)
			if err != nil || frame.Type == "" {
				s.raw <- string(data)
				continue
			}
			s.frames <- frame
		}
	}))
	return s
}

func (s *stubRelay) Close() {
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.server.Close()
}

func (s *stubRelay) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.connected:
		return conn
	case <-time.After(waitFor):
		t.Fatal("no websocket connection within deadline")
		return nil
	}
}

func (s *stubRelay) expectFrame(t *testing.T, frameType string) *relay.Frame {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case frame := <-s.frames:
			if frame.Type == frameType {
				return frame
			}
		case <-deadline:
			t.Fatalf("no %v frame within deadline", frameType)
			return nil
		}
	}
}

func (s *stubRelay) push(t *testing.T, conn *websocket.Conn, frame *relay.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame.Marshal()))
}

func (s *stubRelay) pushEncrypted(t *testing.T, conn *websocket.Conn, topic, payload string) {
	t.Helper()
	sealed, err := envelope.Seal([]byte(payload), testKey)
	require.NoError(t, err)
	s.push(t, conn, relay.NewPub(topic, sealed.Marshal(), true))
}

func testSession(s *stubRelay) *session.Session {
	return &session.Session{
		Topic:            "abc-123",
		Version:          "1",
		Bridge:           s.server.URL,
		Key:              testKey,
		NumericalVersion: 1.0,
		Source:           session.SourceWalletConnect,
	}
}

func decryptFrame(t *testing.T, frame *relay.Frame) []byte {
	t.Helper()
	sealed, err := frame.Envelope()
	require.NoError(t, err)
	require.NotNil(t, sealed)
	plain, err := envelope.Open(sealed, testKey)
	require.NoError(t, err)
	return plain
}

func sessionRequestJSON(id int64, peerID string) string {
	return fmt.Sprintf(`{"id":%v,"jsonrpc":"2.0","method":"wc_sessionRequest",`+
		`"params":[{"peerId":"%v","peerMeta":{"name":"dapp","url":"https://dapp.example","description":"","icons":[]},"chainId":1}]}`,
		id, peerID)
}

func TestPairAndApprove(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	requests := make(chan int64, 4)
	wallet := New(testSession(stub), Options{DisableReconnect: true})
	wallet.Callbacks = &Callbacks{
		OnSessionRequest: func(id int64, param SessionRequestParam) { requests <- id },
	}
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)
	assert.Equal(t, StateConnected, wallet.State())

	first := stub.expectFrame(t, relay.TypeSub)
	second := stub.expectFrame(t, relay.TypeSub)
	assert.Equal(t, "abc-123", first.Topic)
	assert.Equal(t, wallet.ClientID(), second.Topic)

	stub.pushEncrypted(t, conn, "abc-123", sessionRequestJSON(42, "peer-9"))
	select {
	case id := <-requests:
		assert.Equal(t, int64(42), id)
	case <-time.After(waitFor):
		t.Fatal("no session request callback")
	}
	assert.Equal(t, int64(42), wallet.HandshakeID())
	assert.Equal(t, "peer-9", wallet.PeerID())
	require.NotNil(t, wallet.PeerMeta())
	assert.Equal(t, "dapp", wallet.PeerMeta().Name)

	// Learning the peer id subscribes its topic: acks arrive addressed to it.
	peerSub := stub.expectFrame(t, relay.TypeSub)
	assert.Equal(t, "peer-9", peerSub.Topic)

	require.NoError(t, wallet.ApproveSession(ApproveSessionResult{
		Approved: true,
		ChainID:  "1",
		Accounts: []string{"0xabc"},
		PeerID:   wallet.ClientID(),
	}))

	pub := stub.expectFrame(t, relay.TypePub)
	assert.Equal(t, "peer-9", pub.Topic)
	plain := decryptFrame(t, pub)

	var response struct {
		ID     int64                `json:"id"`
		Result ApproveSessionResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(plain, &response))
	assert.Equal(t, int64(42), response.ID)
	assert.True(t, response.Result.Approved)
	assert.Equal(t, []string{"0xabc"}, response.Result.Accounts)
}

func TestApproveSessionWithoutHandshake(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	wallet := New(testSession(stub), Options{DisableReconnect: true})
	err := wallet.ApproveSession(ApproveSessionResult{Approved: true})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSessionInvalid))

	err = wallet.RejectSession("nope")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSessionInvalid))
}

func TestTamperedEnvelopeKeepsConnection(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	sessionErrors := make(chan error, 4)
	wallet := New(testSession(stub), Options{DisableReconnect: true})
	wallet.Callbacks = &Callbacks{
		OnError: func(err error) { sessionErrors <- err },
	}
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)

	sealed, err := envelope.Seal([]byte(`{"id":1,"method":"wc_sessionRequest","params":[{}]}`), testKey)
	require.NoError(t, err)
	last := sealed.Hmac[len(sealed.Hmac)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	sealed.Hmac = sealed.Hmac[:len(sealed.Hmac)-1] + string(flipped)
	stub.push(t, conn, relay.NewPub("abc-123", sealed.Marshal(), true))

	select {
	case err := <-sessionErrors:
		assert.True(t, errors.IsKind(err, errors.KindHmacMismatch))
	case <-time.After(waitFor):
		t.Fatal("no error callback")
	}
	assert.Equal(t, StateConnected, wallet.State())
}

func TestHandshakeTimeout(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	disconnects := make(chan error, 4)
	wallet := New(testSession(stub), Options{
		SessionRequestTimeout: 80 * time.Millisecond,
		DisableReconnect:      true,
	})
	wallet.Callbacks = &Callbacks{
		OnDisconnect: func(err error) { disconnects <- err },
	}

	require.NoError(t, wallet.Connect(context.Background()))
	select {
	case err := <-disconnects:
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindSessionRequestTimeout))
	case <-time.After(waitFor):
		t.Fatal("no disconnect callback")
	}
	assert.Equal(t, StateDisconnected, wallet.State())
}

func TestStoreResumeSkipsHandshakeWatchdog(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	sess := testSession(stub)
	sessions := store.NewMemoryStore()
	require.NoError(t, sessions.Store(sess.Topic, &store.Record{
		Session:  sess,
		PeerID:   "peer-9",
		PeerMeta: &session.PeerMeta{Name: "dapp"},
	}))

	disconnects := make(chan error, 4)
	wallet := New(sess, Options{
		SessionRequestTimeout: 80 * time.Millisecond,
		DisableReconnect:      true,
		Store:                 sessions,
	})
	wallet.Callbacks = &Callbacks{
		OnDisconnect: func(err error) { disconnects <- err },
	}
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	topics := map[string]bool{}
	for i := 0; i < 3; i++ {
		topics[stub.expectFrame(t, relay.TypeSub).Topic] = true
	}
	assert.True(t, topics["abc-123"])
	assert.True(t, topics[wallet.ClientID()])
	assert.True(t, topics["peer-9"])
	assert.Equal(t, "peer-9", wallet.PeerID())
	require.NotNil(t, wallet.PeerMeta())

	// Well past the handshake window: a resumed session must not time out.
	select {
	case err := <-disconnects:
		t.Fatalf("unexpected disconnect:%v", err)
	case <-time.After(250 * time.Millisecond):
	}
	assert.Equal(t, StateConnected, wallet.State())
}

func TestRejectRequest(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	transactions := make(chan int64, 4)
	wallet := New(testSession(stub), Options{DisableReconnect: true})
	wallet.Callbacks = &Callbacks{}
	wallet.Ethereum = &chains.Ethereum{
		OnTransaction: func(id int64, tx chains.Transaction, event chains.Event, timestamp *uint64) {
			transactions <- id
		},
	}
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)

	stub.pushEncrypted(t, conn, "abc-123",
		`{"id":7,"jsonrpc":"2.0","method":"eth_sendTransaction","params":[{"from":"0xaaa","to":"0xbbb"}]}`)
	select {
	case id := <-transactions:
		assert.Equal(t, int64(7), id)
	case <-time.After(waitFor):
		t.Fatal("no transaction callback")
	}

	require.NoError(t, wallet.RejectRequest(7, "user refused"))
	pub := stub.expectFrame(t, relay.TypePub)
	plain := decryptFrame(t, pub)

	var response struct {
		ID    int64 `json:"id"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(plain, &response))
	assert.Equal(t, int64(7), response.ID)
	assert.Equal(t, 4001, response.Error.Code)
	assert.Equal(t, "user refused", response.Error.Message)
}

func TestKillSession(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	killed := make(chan struct{}, 4)
	wallet := New(testSession(stub), Options{DisableReconnect: true})
	wallet.Callbacks = &Callbacks{
		OnSessionKilled: func() { killed <- struct{}{} },
	}

	require.NoError(t, wallet.Connect(context.Background()))
	stub.waitConn(t)

	require.NoError(t, wallet.KillSession(chains.EventSessionUpdate))
	pub := stub.expectFrame(t, relay.TypePub)
	plain := decryptFrame(t, pub)

	var request struct {
		Method string                   `json:"method"`
		Params []map[string]interface{} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(plain, &request))
	assert.Equal(t, "wc_sessionUpdate", request.Method)
	require.Len(t, request.Params, 1)
	update := request.Params[0]
	assert.Equal(t, false, update["approved"])
	chainID, present := update["chainId"]
	assert.True(t, present)
	assert.Nil(t, chainID)
	accounts, present := update["accounts"]
	assert.True(t, present)
	assert.Nil(t, accounts)

	select {
	case <-killed:
	case <-time.After(waitFor):
		t.Fatal("no session killed callback")
	}
	assert.Equal(t, StateDisconnected, wallet.State())
}

func TestPeerKillFiresOnce(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	killed := make(chan struct{}, 4)
	disconnects := make(chan error, 4)
	wallet := New(testSession(stub), Options{DisableReconnect: true})
	wallet.Callbacks = &Callbacks{
		OnSessionKilled: func() { killed <- struct{}{} },
		OnDisconnect:    func(err error) { disconnects <- err },
	}

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)

	stub.pushEncrypted(t, conn, "abc-123",
		`{"id":99,"jsonrpc":"2.0","method":"wc_sessionUpdate","params":[{"approved":false,"chainId":null,"accounts":null}]}`)

	select {
	case <-killed:
	case <-time.After(waitFor):
		t.Fatal("no session killed callback")
	}
	select {
	case err := <-disconnects:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("no disconnect callback")
	}
	assert.Equal(t, StateDisconnected, wallet.State())
	select {
	case <-killed:
		t.Fatal("session killed fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCustomRequest(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	type customRequest struct {
		id  int64
		raw json.RawMessage
	}
	custom := make(chan customRequest, 4)
	signs := make(chan int64, 4)
	wallet := New(testSession(stub), Options{DisableReconnect: true})
	wallet.Callbacks = &Callbacks{
		OnCustomRequest: func(id int64, raw json.RawMessage, timestamp *uint64) {
			custom <- customRequest{id: id, raw: raw}
		},
	}
	wallet.Ethereum = &chains.Ethereum{OnSign: func(id int64, payload chains.SignPayload) { signs <- id }}
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)

	stub.pushEncrypted(t, conn, "abc-123", `{"id":11,"jsonrpc":"2.0","method":"my_custom","params":{"a":1}}`)
	select {
	case got := <-custom:
		assert.Equal(t, int64(11), got.id)
		assert.Contains(t, string(got.raw), "my_custom")
	case <-time.After(waitFor):
		t.Fatal("no custom request callback")
	}
	select {
	case id := <-signs:
		t.Fatalf("chain handler invoked for custom method, id %v", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTextPingAnsweredWithPong(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	wallet := New(testSession(stub), Options{DisableReconnect: true})
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	select {
	case text := <-stub.raw:
		assert.Equal(t, "pong", text)
	case <-time.After(waitFor):
		t.Fatal("no pong reply")
	}
}

func TestReconnectAfterDroppedSocket(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	disconnects := make(chan error, 4)
	wallet := New(testSession(stub), Options{
		ReconnectAttempts: 3,
		ReconnectDelay:    50 * time.Millisecond,
	})
	wallet.Callbacks = &Callbacks{
		OnDisconnect: func(err error) { disconnects <- err },
	}
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)
	stub.expectFrame(t, relay.TypeSub)
	stub.expectFrame(t, relay.TypeSub)

	// Kill the socket from the bridge side.
	conn.Close()
	select {
	case err := <-disconnects:
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindTransport))
	case <-time.After(waitFor):
		t.Fatal("no disconnect callback")
	}

	// A fresh connection re-subscribes the session topic.
	stub.waitConn(t)
	resub := stub.expectFrame(t, relay.TypeSub)
	assert.Equal(t, "abc-123", resub.Topic)
	assert.Equal(t, StateConnected, wallet.State())
}

func TestFatalCloseCodeSuppressesReconnect(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	disconnects := make(chan error, 4)
	wallet := New(testSession(stub), Options{
		ReconnectAttempts: 3,
		ReconnectDelay:    50 * time.Millisecond,
	})
	wallet.Callbacks = &Callbacks{
		OnDisconnect: func(err error) { disconnects <- err },
	}

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)

	deadline := time.Now().Add(time.Second)
	message := websocket.FormatCloseMessage(relay.CloseTooManyMessages, "too many messages")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, message, deadline))
	conn.Close()

	select {
	case err := <-disconnects:
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindSecurity))
	case <-time.After(waitFor):
		t.Fatal("no disconnect callback")
	}
	assert.Equal(t, StateDisconnected, wallet.State())

	select {
	case <-stub.connected:
		t.Fatal("reconnected after fatal close code")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPauseAndResume(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	wallet := New(testSession(stub), Options{DisableReconnect: true})
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	stub.waitConn(t)
	stub.expectFrame(t, relay.TypeSub)
	stub.expectFrame(t, relay.TypeSub)

	wallet.Pause()
	assert.Equal(t, StatePaused, wallet.State())

	require.NoError(t, wallet.Resume(context.Background()))
	stub.waitConn(t)
	resub := stub.expectFrame(t, relay.TypeSub)
	assert.Equal(t, "abc-123", resub.Topic)
	assert.Equal(t, StateConnected, wallet.State())
}

func TestDisconnectIsIdempotentAndFinal(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	disconnects := make(chan error, 4)
	wallet := New(testSession(stub), Options{DisableReconnect: true})
	wallet.Callbacks = &Callbacks{
		OnDisconnect: func(err error) { disconnects <- err },
	}

	require.NoError(t, wallet.Connect(context.Background()))
	stub.waitConn(t)

	wallet.Disconnect()
	select {
	case err := <-disconnects:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("no disconnect callback")
	}
	assert.Equal(t, StateDisconnected, wallet.State())
	assert.Equal(t, int64(-1), wallet.HandshakeID())
	assert.Equal(t, "", wallet.PeerID())

	wallet.Disconnect()
	select {
	case <-disconnects:
		t.Fatal("disconnect fired twice")
	case <-time.After(100 * time.Millisecond):
	}

	err := wallet.ApproveRequest(1, "0xsigned")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransport))
}

func TestAckSurfacesToApplication(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	acks := make(chan AckMessage, 4)
	wallet := New(testSession(stub), Options{DisableReconnect: true})
	wallet.Callbacks = &Callbacks{
		OnReceiveACK: func(msg AckMessage) { acks <- msg },
	}
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	conn := stub.waitConn(t)

	ts := uint64(1660000000)
	ack := &relay.Frame{Topic: "peer-9", Type: relay.TypeAck, Payload: "", Timestamp: &ts}
	stub.push(t, conn, ack)

	select {
	case msg := <-acks:
		assert.Equal(t, "peer-9", msg.Topic)
		require.NotNil(t, msg.Timestamp)
		assert.Equal(t, ts, *msg.Timestamp)
	case <-time.After(waitFor):
		t.Fatal("no ack callback")
	}
}

func TestUpdateSessionEmitsStringChainID(t *testing.T) {
	stub := newStubRelay()
	defer stub.Close()

	wallet := New(testSession(stub), Options{DisableReconnect: true})
	defer wallet.Disconnect()

	require.NoError(t, wallet.Connect(context.Background()))
	stub.waitConn(t)

	chainID := jsonrpc.ChainID("56")
	require.NoError(t, wallet.UpdateSession(chains.EventSessionUpdate, SessionUpdateParam{
		Approved: true,
		ChainID:  &chainID,
		Accounts: []string{"0xabc"},
	}))

	pub := stub.expectFrame(t, relay.TypePub)
	plain := decryptFrame(t, pub)

	var request struct {
		ID     int64                    `json:"id"`
		Method string                   `json:"method"`
		Params []map[string]interface{} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(plain, &request))
	assert.Greater(t, request.ID, int64(0))
	assert.Equal(t, "wc_sessionUpdate", request.Method)
	require.Len(t, request.Params, 1)
	assert.Equal(t, "56", request.Params[0]["chainId"])

	err := wallet.UpdateSession(chains.EventSessionUpdate, SessionUpdateParam{})
	require.NoError(t, err)
	wallet.Disconnect()
	err = wallet.UpdateSession(chains.EventSessionUpdate, SessionUpdateParam{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransport))
}
