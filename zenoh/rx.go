package zenoh

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/gabrik/zenoh-pico-go/internal/session"
	"github.com/gabrik/zenoh-pico-go/internal/wire"
)

// readBufSize is the chunk size handed to one Link.Read call. It bounds
// neither message size (streamed messages are reassembled across reads
// via wire.SplitLenPrefixed) nor fragment count (rxFrag grows as needed).
const readBufSize = 65536

// Run drives the background reader: it blocks reading from the link,
// decodes transport messages, reassembles fragments, and dispatches
// completed zenoh messages until ctx is canceled or the link errors.
//
// A blocked Link.Read does not observe ctx directly; call Close to
// unblock it on shutdown. A read error after ctx is canceled returns
// ctx.Err() rather than the link error.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("session reader started")
	defer s.logger.Info("session reader stopped")

	buf := make([]byte, readBufSize)
	var pending []byte

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := s.link.Read(buf)
		if err != nil {
			s.logger.Info("link read ended", slog.Any("error", err))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		if !s.streamed {
			s.handleTransportBytes(buf[:n])
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			msgBytes, consumed, ok := wire.SplitLenPrefixed(pending)
			if !ok {
				break
			}
			s.handleTransportBytes(msgBytes)
			pending = pending[consumed:]
		}
	}
}

func (s *Session) handleTransportBytes(b []byte) {
	msg, err := wire.DecodeTransportMessage(b)
	if err != nil {
		s.logger.Warn("dropping malformed transport message", slog.Any("error", err))
		return
	}
	switch m := msg.(type) {
	case wire.Frame:
		s.handleFrame(m)
	case wire.Unit:
		s.handleUnit(m)
	case wire.Raw:
		// Session-lifecycle kinds (OPEN/CLOSE/KEEPALIVE/ACK) are out of
		// scope for this package; see wire.Raw.
	}
}

// handleFrame accumulates fragment payloads in rxFrag until a Final
// fragment arrives, then decodes and dispatches the reassembled message.
// A non-fragment Frame dispatches its carried message directly. Inbound
// fragment reassembly has no analogue in internal/session — tx.go only
// implements the send side — so it lives here, at the boundary the core
// deliberately leaves to its caller.
func (s *Session) handleFrame(f wire.Frame) {
	if !f.Fragment {
		s.dispatch(f.Message)
		return
	}

	s.rxFrag = append(s.rxFrag, f.FragmentPayload...)
	if !f.Final {
		return
	}

	defragged := s.rxFrag
	s.rxFrag = nil

	zmsg, err := wire.DecodeZenoh(bytes.NewReader(defragged))
	if err != nil {
		s.logger.Warn("dropping malformed reassembled message", slog.Any("error", err))
		return
	}
	s.dispatch(zmsg)
}

// dispatch hands m to the core dispatcher (which records metrics and
// triggers subscriptions/queryables as applicable) and additionally
// routes Reply messages to a pending local Query, if one is waiting.
func (s *Session) dispatch(m wire.ZenohMessage) {
	if err := s.core.Dispatch(m); err != nil {
		s.logger.Warn("dispatch failed", slog.Any("error", err))
	}
	if reply, ok := m.(wire.Reply); ok {
		s.routeReply(reply)
	}
}

func (s *Session) routeReply(r wire.Reply) {
	s.pendingMu.Lock()
	pq, ok := s.pending[r.QID]
	s.pendingMu.Unlock()
	if !ok {
		return
	}

	key, err := s.core.Resolve(session.Remote, r.Key)
	if err != nil {
		key = r.Key.RName
	}

	select {
	case pq.replies <- Reply{Key: key, Payload: r.Payload}:
	default:
		s.logger.Warn("dropping reply: pending query buffer full", slog.Uint64("qid", r.QID))
	}
}

// handleUnit closes out a pending query's reply stream on the terminal
// UNIT that trigger_queryables sends once every matching queryable has
// run. A UNIT for an id with no pending query (already collected, or
// never issued by this session) is a no-op.
func (s *Session) handleUnit(u wire.Unit) {
	if !u.Final {
		return
	}
	s.pendingMu.Lock()
	pq, ok := s.pending[u.QID]
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	close(pq.done)
}
