// Package ws carries the inter-device peer link over a WebSocket. It
// implements the session transport boundary: best-effort sends that fail
// silently while the peer is away, and an inbound channel that survives
// reconnects. One endpoint listens, the other dials; the dialing side
// redials with exponential backoff for the life of the process.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/xinchenjiangau/PickUpSoccer/internal/config"
	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Device pairing is point-to-point on a private link
		return true
	},
}

// PeerLink is a single point-to-point WebSocket connection to the paired
// device
type PeerLink struct {
	cfg    *config.SessionConfig
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	recv   chan map[string]any
	stopCh chan struct{}
	wg     sync.WaitGroup
	server *http.Server

	closeOnce sync.Once
}

// NewPeerLink creates a peer link. Start must be called before use.
func NewPeerLink(cfg *config.SessionConfig, logger *slog.Logger) *PeerLink {
	return &PeerLink{
		cfg:    cfg,
		logger: logger,
		recv:   make(chan map[string]any, 256),
		stopCh: make(chan struct{}),
	}
}

// Start brings the link up: listening when ListenAddr is set, dialing in
// the background when PeerURL is set. With neither configured the link is
// inert and every send reports the peer unreachable.
func (l *PeerLink) Start() error {
	if l.cfg.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/link", l.serveLink)
		l.server = &http.Server{Addr: l.cfg.ListenAddr, Handler: mux}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.logger.Info("peer link listening", "addr", l.cfg.ListenAddr)
			if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.logger.Error("peer link server error", "error", err)
			}
		}()
	}
	if l.cfg.PeerURL != "" {
		l.wg.Add(1)
		go l.dialLoop()
	}
	return nil
}

// Send writes one wire payload to the peer. Returns
// domain.ErrPeerUnreachable when no connection is up.
func (l *PeerLink) Send(_ context.Context, payload map[string]any) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn == nil {
		return domain.ErrPeerUnreachable
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

// Reachable reports whether a peer connection is currently established
func (l *PeerLink) Reachable() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conn != nil
}

// Receive returns the inbound payload channel. It stays open across peer
// reconnects and closes when the link shuts down.
func (l *PeerLink) Receive() <-chan map[string]any {
	return l.recv
}

// Close shuts the link down and closes the receive channel
func (l *PeerLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopCh)
		if l.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = l.server.Shutdown(shutdownCtx)
		}
		l.dropConn()
		l.wg.Wait()
		close(l.recv)
	})
	return err
}

// serveLink upgrades an inbound peer connection and pumps it until it dies
func (l *PeerLink) serveLink(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("peer link upgrade failed", "error", err)
		return
	}
	l.logger.Info("peer connected", "remote", conn.RemoteAddr().String())
	l.adoptConn(conn)

	// Tracked so Close cannot tear the receive channel down under an
	// in-flight forward from this pump.
	l.wg.Add(1)
	defer l.wg.Done()
	l.readPump(conn)
}

// dialLoop redials the peer with exponential backoff for the life of the
// process, re-establishing the link whenever the peer reappears.
func (l *PeerLink) dialLoop() {
	defer l.wg.Done()
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = l.cfg.ReconnectMaxInterval
	policy.MaxElapsedTime = 0

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(l.cfg.PeerURL, nil)
		if err != nil {
			wait := policy.NextBackOff()
			l.logger.Debug("peer dial failed", "url", l.cfg.PeerURL, "retry_in", wait, "error", err)
			select {
			case <-l.stopCh:
				return
			case <-time.After(wait):
			}
			continue
		}

		policy.Reset()
		l.logger.Info("peer connected", "url", l.cfg.PeerURL)
		l.adoptConn(conn)
		l.readPump(conn)
	}
}

// adoptConn installs a new connection, replacing any previous one, and
// starts its keepalive pings.
func (l *PeerLink) adoptConn(conn *websocket.Conn) {
	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.conn = conn
	l.mu.Unlock()

	l.wg.Add(1)
	go l.pingLoop(conn)
}

func (l *PeerLink) dropConn() {
	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()
}

// readPump reads peer payloads until the connection dies. Payloads are
// forwarded to the receive channel; a full channel drops the message, in
// keeping with best-effort delivery.
func (l *PeerLink) readPump(conn *websocket.Conn) {
	defer func() {
		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var payload map[string]any
		if err := conn.ReadJSON(&payload); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l.logger.Warn("peer link read error", "error", err)
			} else {
				l.logger.Info("peer disconnected")
			}
			return
		}
		select {
		case l.recv <- payload:
		case <-l.stopCh:
			return
		default:
			l.logger.Warn("receive buffer full, dropping payload")
		}
	}
}

// pingLoop keeps the connection's reachability signal fresh
func (l *PeerLink) pingLoop(conn *websocket.Conn) {
	defer l.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.RLock()
			current := l.conn == conn
			l.mu.RUnlock()
			if !current {
				return
			}
			l.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			l.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
