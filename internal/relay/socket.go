package relay

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bridgewallet.io/bridge-wallet/pkg/errors"
	"bridgewallet.io/bridge-wallet/pkg/log"
)

// Close codes with protocol meaning.
const (
	// CloseNormal ends the session cleanly.
	CloseNormal = websocket.CloseNormalClosure
	// CloseGoingAway is sent when the interactor pauses the session.
	CloseGoingAway = websocket.CloseGoingAway
	// CloseTooManyMessages is sent by the bridge when a client floods a
	// topic or fails a security check. Fatal: the client must not reconnect.
	CloseTooManyMessages = 4022
)

const (
	defaultWriteTimeout = 5 * time.Second
	textPing            = "ping"
	textPong            = "pong"
)

// WebSocketURL rewrites a bridge https url to its websocket endpoint.
func WebSocketURL(bridge, protocol, version string) string {
	switch {
	case strings.HasPrefix(bridge, "https"):
		bridge = strings.Replace(bridge, "https", "wss", 1)
	case strings.HasPrefix(bridge, "http"):
		bridge = strings.Replace(bridge, "http", "ws", 1)
	}
	return bridge + "?protocol=" + protocol + "&version=" + version + "&env=wallet"
}

// Socket wraps one bridge websocket connection. Inbound frames are delivered
// in socket order on Frames; the channel closes when the read pump exits, at
// which point Err and CloseCode describe why.
type Socket struct {
	conn         *websocket.Conn
	writeLock    sync.Mutex
	writeTimeout time.Duration
	frames       chan *Frame

	closeOnce sync.Once

	mu        sync.Mutex
	readErr   error
	closeCode int
}

// Dial opens a websocket to the bridge and starts the read pump.
func Dial(ctx context.Context, bridge string) (*Socket, error) {
	wsURL := WebSocketURL(bridge, "wc", "1")
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.WithKind(errors.KindTransport, errors.Wrap(err, "dial bridge websocket"))
	}
	s := &Socket{
		conn:         conn,
		writeTimeout: defaultWriteTimeout,
		frames:       make(chan *Frame, 16),
	}
	go s.readPump()
	return s, nil
}

// Frames returns the inbound frame channel. Closed when the connection dies.
func (s *Socket) Frames() <-chan *Frame {
	return s.frames
}

// Err returns the read-pump terminal error, nil on a clean close.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// CloseCode returns the websocket close code received from the peer, 0 if the
// connection did not end with a close frame.
func (s *Socket) CloseCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

func (s *Socket) readPump() {
	defer close(s.frames)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		text := string(data)
		// The historical relay sends an application-level ping text
		// frame alongside websocket pings.
		if text == textPing {
			if err := s.WriteText(textPong); err != nil {
				log.Errorf("relay - answer text ping:%v", err)
			}
			continue
		}
		log.Debugf("relay - receive:%v", text)
		frame, err := FromBytes(data)
		if err != nil {
			log.Errorf("relay - drop unparseable frame:%v", err)
			continue
		}
		s.frames <- frame
	}
}

func (s *Socket) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if closeErr, ok := err.(*websocket.CloseError); ok {
		s.closeCode = closeErr.Code
		if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == CloseGoingAway {
			return
		}
	}
	s.readErr = err
}

// WriteFrame sends one frame with the per-send watchdog applied. A write that
// the socket never acknowledges within the deadline surfaces as a
// session-request timeout; other failures are transport errors.
func (s *Socket) WriteFrame(f *Frame) error {
	return s.write(f.Marshal())
}

// WriteText sends a raw text frame.
func (s *Socket) WriteText(text string) error {
	return s.write([]byte(text))
}

func (s *Socket) write(data []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return errors.WithKind(errors.KindTransport, errors.Wrap(err, "set websocket write deadline"))
	}
	err := s.conn.WriteMessage(websocket.TextMessage, data)
	if err == nil {
		return nil
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return errors.WithKind(errors.KindSessionRequestTimeout, errors.Wrap(err, "websocket write timed out"))
	}
	return errors.WithKind(errors.KindTransport, errors.Wrap(err, "write websocket message"))
}

// Ping sends a websocket-level ping control frame.
func (s *Socket) Ping() error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	deadline := time.Now().Add(s.writeTimeout)
	if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return errors.WithKind(errors.KindTransport, errors.Wrap(err, "write websocket ping"))
	}
	return nil
}

// Close sends a close frame with the given code and tears the connection
// down. Safe to call more than once; only the first close takes effect.
func (s *Socket) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		message := websocket.FormatCloseMessage(code, reason)
		s.writeLock.Lock()
		if err := s.conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
			log.Debugf("relay - write close frame:%v", err)
		}
		s.writeLock.Unlock()
		if err := s.conn.Close(); err != nil {
			log.Debugf("relay - close websocket:%v", err)
		}
	})
}
