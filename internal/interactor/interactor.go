package interactor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"bridgewallet.io/bridge-wallet/internal/chains"
	"bridgewallet.io/bridge-wallet/internal/jsonrpc"
	"bridgewallet.io/bridge-wallet/internal/relay"
	"bridgewallet.io/bridge-wallet/internal/session"
	"bridgewallet.io/bridge-wallet/internal/store"
	"bridgewallet.io/bridge-wallet/pkg/envelope"
	"bridgewallet.io/bridge-wallet/pkg/errors"
	"bridgewallet.io/bridge-wallet/pkg/log"
)

// Interactor states.
const (
	StateDisconnected int32 = iota
	StateConnecting
	StateConnected
	StatePaused
)

const (
	defaultSessionRequestTimeout = 20 * time.Second
	defaultConnectTimeout        = 15 * time.Second
	defaultPingInterval          = 15 * time.Second
	defaultReconnectAttempts     = 3
	defaultReconnectDelay        = 500 * time.Millisecond
)

// Options tune the interactor watchdogs and the reconnect policy. Zero
// values take the protocol defaults.
type Options struct {
	SessionRequestTimeout time.Duration
	ConnectTimeout        time.Duration
	PingInterval          time.Duration

	DisableReconnect  bool
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// Store is consulted at connect time to resume a known session without
	// a new handshake. Defaults to an in-process store.
	Store store.SessionStore
}

func (o Options) withDefaults() Options {
	if o.SessionRequestTimeout <= 0 {
		o.SessionRequestTimeout = defaultSessionRequestTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = defaultReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.Store == nil {
		o.Store = store.NewMemoryStore()
	}
	return o
}

// Interactor drives one bridge session: it owns the websocket, the
// subscription set, the handshake context and the timers, and raises every
// inbound event through Callbacks and the chain handlers. The session
// descriptor is shared immutably.
type Interactor struct {
	session  *session.Session
	clientID string
	opts     Options

	// Observer surface; assign before Connect.
	Callbacks *Callbacks
	Ethereum  *chains.Ethereum
	Binance   *chains.Binance
	Trust     *chains.Trust
	Cosmos    *chains.Cosmos

	state         *atomic.Int32
	userCancelled *atomic.Bool
	killedFired   *atomic.Bool

	lock           sync.Mutex
	sock           *relay.Socket
	subs           *subscriptions
	handshakeID    int64
	peerID         string
	peerMeta       *session.PeerMeta
	chainType      string
	handshakeTimer *time.Timer
	stopPing       chan struct{}
	reconnects     int
}

// New creates an interactor for the given pairing. The client id is a fresh
// uuid; the bridge learns it through the sub frame and addresses acks to it.
func New(sess *session.Session, opts Options) *Interactor {
	return &Interactor{
		session:       sess,
		clientID:      uuid.NewString(),
		opts:          opts.withDefaults(),
		state:         atomic.NewInt32(StateDisconnected),
		userCancelled: atomic.NewBool(false),
		killedFired:   atomic.NewBool(false),
		subs:          newSubscriptions(),
		handshakeID:   -1,
	}
}

func (i *Interactor) Session() *session.Session { return i.session }
func (i *Interactor) ClientID() string          { return i.clientID }
func (i *Interactor) State() int32              { return i.state.Load() }

// HandshakeID returns the pending session-request id, -1 when none is known.
func (i *Interactor) HandshakeID() int64 {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.handshakeID
}

// PeerID returns the peer identity learned at handshake or from the store.
func (i *Interactor) PeerID() string {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.peerID
}

// PeerMeta returns the peer metadata, nil before the handshake.
func (i *Interactor) PeerMeta() *session.PeerMeta {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.peerMeta
}

// ChainType returns the chain family the peer asked for at handshake.
func (i *Interactor) ChainType() string {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.chainType
}

// Connect dials the bridge, subscribes the session topic and the client id,
// and either restores the peer from the session store or arms the handshake
// watchdog. Blocks until the socket is up or the connect window expires.
func (i *Interactor) Connect(ctx context.Context) error {
	if !i.state.CAS(StateDisconnected, StateConnecting) &&
		!i.state.CAS(StatePaused, StateConnecting) {
		return errors.NewKind(errors.KindSessionInvalid, "interactor is already connecting or connected")
	}
	i.userCancelled.Store(false)

	dialCtx, cancel := context.WithTimeout(ctx, i.opts.ConnectTimeout)
	defer cancel()
	sock, err := relay.Dial(dialCtx, i.session.Bridge)
	if err != nil {
		i.state.Store(StateDisconnected)
		if dialCtx.Err() != nil {
			err = errors.WithKind(errors.KindSessionRequestTimeout, err)
		}
		i.Callbacks.fireDisconnect(err)
		return err
	}

	i.lock.Lock()
	i.sock = sock
	i.reconnects = 0
	i.lock.Unlock()
	i.subs.Reset()
	i.killedFired.Store(false)
	i.state.Store(StateConnected)

	i.subscribe(sock, i.session.Topic)
	i.subscribe(sock, i.clientID)

	if !i.restoreFromStore(sock) {
		i.armHandshakeWatchdog()
	}
	i.startPing(sock)
	go i.receiveLoop(sock)

	log.Infof("interactor - connected to bridge %v for topic %v", i.session.Bridge, i.session.Topic)
	i.Callbacks.fireConnected()
	return nil
}

// restoreFromStore reports whether the pairing was resumed from persistence.
// Only an exact descriptor match restores the peer; a stale record for the
// same topic still goes through the handshake.
func (i *Interactor) restoreFromStore(sock *relay.Socket) bool {
	record, err := i.opts.Store.Load(i.session.Topic)
	if err != nil {
		log.Errorf("interactor - load session record:%v", err)
		return false
	}
	if record == nil || !record.Session.Equal(i.session) {
		return false
	}
	i.lock.Lock()
	i.peerMeta = record.PeerMeta
	i.lock.Unlock()
	i.setPeerID(sock, record.PeerID)
	log.Infof("interactor - resumed session with peer %v", record.PeerID)
	return true
}

// Disconnect tears the session down on user request. Idempotent; suppresses
// reconnection.
func (i *Interactor) Disconnect() {
	i.userCancelled.Store(true)
	i.drop(nil, false)
}

// Pause closes the socket with the going-away code and keeps the handshake
// context so Resume can pick the session back up.
func (i *Interactor) Pause() {
	if !i.state.CAS(StateConnected, StatePaused) {
		return
	}
	i.lock.Lock()
	sock := i.sock
	i.sock = nil
	i.stopTimersLocked()
	i.lock.Unlock()
	i.subs.Reset()
	if sock != nil {
		sock.Close(relay.CloseGoingAway, "going away")
	}
	log.Infof("interactor - paused session %v", i.session.Topic)
}

// Resume reopens a paused session.
func (i *Interactor) Resume(ctx context.Context) error {
	if i.state.Load() != StatePaused {
		return errors.NewKind(errors.KindSessionInvalid, "interactor is not paused")
	}
	return i.Connect(ctx)
}

// ApproveSession answers the pending session request affirmatively. The
// handshake id stays known so later peer retransmissions match.
func (i *Interactor) ApproveSession(result ApproveSessionResult) error {
	handshakeID, err := i.pendingHandshake()
	if err != nil {
		return err
	}
	return i.encryptAndSend(jsonrpc.NewResponse(handshakeID, result).Marshal(), true)
}

// RejectSession answers the pending session request with the internal
// rejection code.
func (i *Interactor) RejectSession(message string) error {
	handshakeID, err := i.pendingHandshake()
	if err != nil {
		return err
	}
	return i.encryptAndSend(jsonrpc.NewErrorResponse(handshakeID, jsonrpc.CodeInternal, message).Marshal(), true)
}

func (i *Interactor) pendingHandshake() (int64, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.handshakeID <= 0 {
		return -1, errors.NewKind(errors.KindSessionInvalid, "no pending session request")
	}
	return i.handshakeID, nil
}

// UpdateSession pushes a session update to the peer under the given method
// (wc_sessionUpdate or its extension alias).
func (i *Interactor) UpdateSession(method chains.Event, param SessionUpdateParam) error {
	if i.state.Load() != StateConnected {
		return errors.NewKind(errors.KindTransport, "interactor is not connected")
	}
	request := jsonrpc.NewRequest(string(method), param)
	return i.encryptAndSend(request.Marshal(), request.IsSilent())
}

// KillSession tells the peer the session is over and disconnects. The
// update carries approved:false with null chain id and accounts.
func (i *Interactor) KillSession(method chains.Event) error {
	request := jsonrpc.NewRequest(string(method), SessionUpdateParam{Approved: false})
	err := i.encryptAndSend(request.Marshal(), true)
	i.userCancelled.Store(true)
	i.fireKilledOnce()
	i.drop(nil, false)
	return err
}

// ApproveRequest sends a success response for an individual request.
func (i *Interactor) ApproveRequest(id int64, result interface{}) error {
	return i.encryptAndSend(jsonrpc.NewResponse(id, result).Marshal(), false)
}

// RejectRequest sends the EIP-1193 user-rejection error for an individual
// request.
func (i *Interactor) RejectRequest(id int64, message string) error {
	return i.encryptAndSend(jsonrpc.NewErrorResponse(id, jsonrpc.CodeUserRejected, message).Marshal(), false)
}

// encryptAndSend seals the payload and publishes it to the peer topic, or to
// the session topic while the peer is unknown.
func (i *Interactor) encryptAndSend(payload []byte, silent bool) error {
	i.lock.Lock()
	sock := i.sock
	topic := i.peerID
	i.lock.Unlock()
	if sock == nil {
		return errors.NewKind(errors.KindTransport, "interactor is not connected")
	}
	if topic == "" {
		topic = i.session.Topic
	}
	sealed, err := envelope.Seal(payload, i.session.Key)
	if err != nil {
		return err
	}
	frame := relay.NewPub(topic, sealed.Marshal(), silent)
	log.Debugf("interactor - publish to %v:%v", topic, string(payload))
	return sock.WriteFrame(frame)
}

// subscribe emits a sub frame unless the topic is already subscribed. The
// registry mutex is never held across the socket write.
func (i *Interactor) subscribe(sock *relay.Socket, topic string) {
	if topic == "" || !i.subs.Add(topic) {
		return
	}
	if err := sock.WriteFrame(relay.NewSub(topic)); err != nil {
		log.Errorf("interactor - subscribe %v:%v", topic, err)
	}
}

// setPeerID records the peer identity and subscribes its topic; ack frames
// arrive addressed to the peer id.
func (i *Interactor) setPeerID(sock *relay.Socket, peerID string) {
	if peerID == "" {
		return
	}
	i.lock.Lock()
	i.peerID = peerID
	i.lock.Unlock()
	i.subscribe(sock, peerID)
}

func (i *Interactor) armHandshakeWatchdog() {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.handshakeTimer = time.AfterFunc(i.opts.SessionRequestTimeout, func() {
		i.lock.Lock()
		pending := i.handshakeID <= 0
		i.lock.Unlock()
		if !pending {
			return
		}
		i.drop(errors.NewKind(errors.KindSessionRequestTimeout, "no session request within handshake window"), false)
	})
}

func (i *Interactor) startPing(sock *relay.Socket) {
	stop := make(chan struct{})
	i.lock.Lock()
	i.stopPing = stop
	i.lock.Unlock()
	go func() {
		ticker := time.NewTicker(i.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := sock.Ping(); err != nil {
					log.Debugf("interactor - ping:%v", err)
				}
			}
		}
	}()
}

// stopTimersLocked invalidates the watchdog and the ping loop. Caller holds
// the interactor lock.
func (i *Interactor) stopTimersLocked() {
	if i.handshakeTimer != nil {
		i.handshakeTimer.Stop()
		i.handshakeTimer = nil
	}
	if i.stopPing != nil {
		close(i.stopPing)
		i.stopPing = nil
	}
}

func (i *Interactor) receiveLoop(sock *relay.Socket) {
	for frame := range sock.Frames() {
		i.handleFrame(sock, frame)
	}

	i.lock.Lock()
	current := i.sock == sock
	i.lock.Unlock()
	if !current {
		// Torn down or replaced already; whoever did it owned the
		// callbacks.
		return
	}
	if i.state.Load() == StatePaused {
		return
	}
	code := sock.CloseCode()
	switch {
	case code == relay.CloseTooManyMessages:
		i.drop(errors.KindErrorf(errors.KindSecurity, "bridge closed session with code %v", code), false)
	case i.userCancelled.Load():
		i.drop(nil, false)
	default:
		err := sock.Err()
		if err != nil {
			err = errors.WithKind(errors.KindTransport, err)
		}
		i.drop(err, true)
	}
}

// drop transitions to disconnected: timers die, subscriptions clear, the
// handshake context resets and the socket closes exactly once. err reaches
// the application through OnDisconnect; nil means a graceful end.
func (i *Interactor) drop(err error, allowReconnect bool) {
	i.lock.Lock()
	if i.sock == nil && i.state.Load() == StateDisconnected {
		i.lock.Unlock()
		return
	}
	sock := i.sock
	i.sock = nil
	i.stopTimersLocked()
	i.handshakeID = -1
	i.peerID = ""
	i.peerMeta = nil
	i.chainType = ""
	i.state.Store(StateDisconnected)
	i.lock.Unlock()
	i.subs.Reset()

	if sock != nil {
		sock.Close(relay.CloseNormal, "")
	}
	i.Callbacks.fireDisconnect(err)

	if allowReconnect && !i.opts.DisableReconnect && !i.userCancelled.Load() {
		i.scheduleReconnect()
	}
}

// scheduleReconnect retries the connection after the policy delay. Each
// failed attempt surfaces through OnDisconnect; exhaustion leaves the
// interactor disconnected with the last error already delivered.
func (i *Interactor) scheduleReconnect() {
	go func() {
		for {
			i.lock.Lock()
			if i.reconnects >= i.opts.ReconnectAttempts {
				i.lock.Unlock()
				log.Warnf("interactor - reconnect attempts exhausted for topic %v", i.session.Topic)
				return
			}
			i.reconnects++
			attempt := i.reconnects
			i.lock.Unlock()

			time.Sleep(i.opts.ReconnectDelay)
			if i.userCancelled.Load() {
				return
			}
			log.Infof("interactor - reconnect attempt %v for topic %v", attempt, i.session.Topic)
			if err := i.Connect(context.Background()); err == nil {
				return
			}
		}
	}()
}

func (i *Interactor) fireKilledOnce() {
	if i.killedFired.CAS(false, true) {
		i.Callbacks.fireSessionKilled()
	}
}
