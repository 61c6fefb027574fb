package wsmessenger

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"go.uber.org/ratelimit"
)

const (
	// PeerPath is the http path where peers accept websocket connections.
	PeerPath = "/p2p"

	envelopeVersion = 1
	dialTimeout     = 30 * time.Second
	writeTimeout    = 15 * time.Second
)

// envelope is the wire format of the messages exchanged between peers.
type envelope struct {
	Version int            `json:"version"`
	Message domain.Message `json:"message"`
}

type peerConn struct {
	lock *sync.Mutex
	conn *websocket.Conn
}

// Messenger sends trade messages to peers over websocket connections that
// are opened on first use and kept for the following messages. Outbound
// messages are rate limited.
type Messenger struct {
	dialer  *websocket.Dialer
	limiter ratelimit.Limiter
	scheme  string

	lock  *sync.Mutex
	conns map[string]*peerConn
}

func NewMessenger(msgsPerSecond int, tlsEnabled bool) (*Messenger, error) {
	if msgsPerSecond <= 0 {
		return nil, fmt.Errorf("messages per second must be positive")
	}
	scheme := "ws"
	if tlsEnabled {
		scheme = "wss"
	}
	return &Messenger{
		dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
		},
		limiter: ratelimit.New(msgsPerSecond),
		scheme:  scheme,
		lock:    &sync.Mutex{},
		conns:   make(map[string]*peerConn),
	}, nil
}

// Send writes the message to the connection with the given peer. A broken
// connection is dropped and dialed again once.
func (m *Messenger) Send(
	ctx context.Context, to domain.NodeAddress, msg domain.Message,
) error {
	if to.IsZero() {
		return fmt.Errorf("missing peer address")
	}

	m.limiter.Take()

	var err error
	for i := 0; i < 2; i++ {
		var pc *peerConn
		pc, err = m.getConn(ctx, to)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", to, err)
		}
		if err = pc.write(ctx, envelope{envelopeVersion, msg}); err == nil {
			return nil
		}
		log.WithError(err).Debugf("connection with %s dropped", to)
		m.dropConn(to, pc)
	}
	return fmt.Errorf("failed to send %s to %s: %w", msg.Type, to, err)
}

// Close closes all the open connections.
func (m *Messenger) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()

	for addr, pc := range m.conns {
		pc.close()
		delete(m.conns, addr)
	}
}

func (m *Messenger) getConn(
	ctx context.Context, to domain.NodeAddress,
) (*peerConn, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if pc, ok := m.conns[to.String()]; ok {
		return pc, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	u := url.URL{Scheme: m.scheme, Host: to.String(), Path: PeerPath}
	conn, _, err := m.dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	pc := &peerConn{lock: &sync.Mutex{}, conn: conn}
	m.conns[to.String()] = pc

	go m.drain(to, pc)
	return pc, nil
}

func (m *Messenger) dropConn(to domain.NodeAddress, pc *peerConn) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if cur, ok := m.conns[to.String()]; ok && cur == pc {
		delete(m.conns, to.String())
	}
	pc.close()
}

// drain consumes the control frames of an outbound connection, which is
// write-only, and drops it as soon as the peer closes it.
func (m *Messenger) drain(to domain.NodeAddress, pc *peerConn) {
	for {
		if _, _, err := pc.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseGoingAway, websocket.CloseNormalClosure,
			) {
				log.WithError(err).Debugf("connection with %s closed", to)
			}
			m.dropConn(to, pc)
			return
		}
	}
}

func (pc *peerConn) write(ctx context.Context, e envelope) error {
	pc.lock.Lock()
	defer pc.lock.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	//nolint
	pc.conn.SetWriteDeadline(deadline)
	return pc.conn.WriteJSON(e)
}

func (pc *peerConn) close() {
	pc.lock.Lock()
	defer pc.lock.Unlock()

	//nolint
	pc.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	//nolint
	pc.conn.Close()
}
