// Package session implements the sync session: the process-wide service
// that tracks peer pairing and reachability and carries commands between
// the local reconciliation engine and the remote device. It is constructed
// and injected explicitly; there is no package-level singleton.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xinchenjiangau/PickUpSoccer/internal/config"
	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
	"github.com/xinchenjiangau/PickUpSoccer/internal/protocol"
)

// Transport is the best-effort point-to-point message boundary. Send has
// no delivery guarantee and no acknowledgment and is only usable while the
// peer is reachable. Receive yields decoded wire field maps; the channel
// stays open across peer reconnects and closes on transport shutdown.
type Transport interface {
	Send(ctx context.Context, payload map[string]any) error
	Reachable() bool
	Receive() <-chan map[string]any
	Close() error
}

// ContextChannel is the durable last-value channel: a published payload is
// retained and handed to the peer on its next activation even if it was
// unreachable at publish time. It also backs device presence.
type ContextChannel interface {
	Publish(ctx context.Context, payload map[string]any) error
	Latest(ctx context.Context) (map[string]any, bool, error)
	Heartbeat(ctx context.Context, deviceID string, ttl time.Duration) error
	Alive(ctx context.Context, deviceID string) (bool, error)
}

// Dispatcher applies decoded commands; implemented by the reconciliation
// engine.
type Dispatcher interface {
	Apply(ctx context.Context, cmd protocol.Command) error
}

// Session owns the peer link lifecycle for one process: activated at
// start, reactivated automatically when the peer link drops and redials,
// torn down at process exit.
type Session struct {
	cfg       *config.SessionConfig
	transport Transport
	channel   ContextChannel
	engine    Dispatcher
	logger    *slog.Logger

	paired atomic.Bool
	active atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a sync session over a transport and a durable context
// channel. The channel may be nil, in which case Publish degrades to a
// plain best-effort Send and presence tracking is disabled.
func New(cfg *config.SessionConfig, transport Transport, channel ContextChannel, engine Dispatcher, logger *slog.Logger) *Session {
	return &Session{
		cfg:       cfg,
		transport: transport,
		channel:   channel,
		engine:    engine,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Activate starts the receive and presence loops. Any payload waiting on
// the durable channel is dispatched first, so a StartMatch published while
// this endpoint was down is applied before live traffic.
func (s *Session) Activate(ctx context.Context) {
	if !s.active.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("sync session activated", "device_id", s.cfg.DeviceID, "peer_id", s.cfg.PeerID)

	s.drainDurable(ctx)

	s.wg.Add(1)
	go s.receiveLoop(ctx)

	if s.channel != nil {
		s.wg.Add(1)
		go s.presenceLoop(ctx)
	}
}

// Close tears the session down and waits for its loops to drain
func (s *Session) Close() error {
	if !s.active.CompareAndSwap(true, false) {
		return nil
	}
	close(s.stopCh)
	err := s.transport.Close()
	s.wg.Wait()
	s.logger.Info("sync session closed", "device_id", s.cfg.DeviceID)
	return err
}

// Send transmits a command fire-and-forget. The caller is never blocked
// and never informed of failure: an unreachable peer makes this a no-op,
// and transient transmission errors are retried with exponential backoff
// in the background until the configured window elapses.
func (s *Session) Send(cmd protocol.Command) {
	if !s.transport.Reachable() {
		s.logger.Debug("send dropped, peer unreachable", "command", cmd.CommandKind())
		return
	}
	payload := protocol.Encode(cmd)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = s.cfg.SendMaxElapsed
		err := backoff.Retry(func() error {
			if !s.transport.Reachable() {
				return backoff.Permanent(domain.ErrPeerUnreachable)
			}
			return s.transport.Send(context.Background(), payload)
		}, policy)
		if err != nil {
			s.logger.Debug("send dropped after retries", "command", cmd.CommandKind(), "error", err)
		}
	}()
}

// Publish places a command on the durable last-value channel so the peer
// receives it on next activation. Used for StartMatch, which must survive
// the peer app not being launched yet.
func (s *Session) Publish(ctx context.Context, cmd protocol.Command) error {
	if s.channel == nil {
		s.Send(cmd)
		return nil
	}
	return s.channel.Publish(ctx, protocol.Encode(cmd))
}

// Reachable reports whether the peer link is currently up
func (s *Session) Reachable() bool {
	return s.transport.Reachable()
}

// Paired reports whether the peer endpoint has been seen alive recently
func (s *Session) Paired() bool {
	return s.paired.Load()
}

// Dispatch decodes one wire payload and applies it to the engine. All
// failures terminate here: malformed commands, unknown references and
// exhausted persistence retries are logged and dropped, never propagated.
func (s *Session) Dispatch(ctx context.Context, payload map[string]any) {
	cmd, err := protocol.Decode(payload)
	if err != nil {
		s.logger.Warn("command dropped at decode", "error", err)
		return
	}
	if err := s.engine.Apply(ctx, cmd); err != nil {
		if domain.IsDroppableError(err) {
			s.logger.Warn("command dropped", "command", cmd.CommandKind(), "error", err)
		} else {
			s.logger.Error("command failed", "command", cmd.CommandKind(), "error", err)
		}
	}
}

// receiveLoop is the single serialized execution context for incoming peer
// traffic: messages arrive on arbitrary transport goroutines but are
// applied to the engine strictly one at a time from here.
func (s *Session) receiveLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case payload, ok := <-s.transport.Receive():
			if !ok {
				return
			}
			s.Dispatch(ctx, payload)
		}
	}
}

// presenceLoop heartbeats this device's presence key and polls the peer's,
// driving the paired flag.
func (s *Session) presenceLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	s.refreshPresence(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshPresence(ctx)
		}
	}
}

func (s *Session) refreshPresence(ctx context.Context) {
	if err := s.channel.Heartbeat(ctx, s.cfg.DeviceID, s.cfg.PresenceTTL); err != nil {
		s.logger.Warn("presence heartbeat failed", "error", err)
	}
	alive, err := s.channel.Alive(ctx, s.cfg.PeerID)
	if err != nil {
		s.logger.Warn("peer presence check failed", "error", err)
		return
	}
	if alive != s.paired.Load() {
		s.paired.Store(alive)
		s.logger.Info("peer pairing changed", "peer_id", s.cfg.PeerID, "paired", alive)
	}
}

// drainDurable applies the payload retained on the durable channel, if any
func (s *Session) drainDurable(ctx context.Context) {
	if s.channel == nil {
		return
	}
	payload, ok, err := s.channel.Latest(ctx)
	if err != nil {
		s.logger.Warn("reading durable channel failed", "error", err)
		return
	}
	if !ok {
		return
	}
	s.logger.Info("applying payload from durable channel")
	s.Dispatch(ctx, payload)
}
