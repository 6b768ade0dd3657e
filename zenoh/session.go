// Package zenoh is the minimal public facade over internal/session:
// Declare/Subscribe/Publish/Queryable/Query plus the background read loop
// that turns link bytes into dispatched messages. It owns id allocation,
// inbound fragment reassembly, and the pending-query table for locally
// issued queries — concerns internal/session's Dispatch leaves to its
// caller (see its doc comment on wire.Reply).
package zenoh

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gabrik/zenoh-pico-go/internal/config"
	"github.com/gabrik/zenoh-pico-go/internal/link"
	zenohmetrics "github.com/gabrik/zenoh-pico-go/internal/metrics"
	"github.com/gabrik/zenoh-pico-go/internal/session"
	"github.com/gabrik/zenoh-pico-go/internal/wire"
)

// Aliases give callers the session vocabulary (Reliability, congestion
// policy, sample/query shapes) without importing internal/session
// directly.
type (
	Sample            = session.Sample
	QueryMsg          = session.QueryMsg
	Reliability       = session.Reliability
	CongestionControl = session.CongestionControl
)

const (
	Reliable   = session.Reliable
	BestEffort = session.BestEffort
)

const (
	Block = session.Block
	Drop  = session.Drop
)

// Queryable kind bits, passed as Queryable's kind argument and Query's
// targetKind argument.
const (
	AllKinds = session.AllKinds
	Storage  = session.Storage
	Eval     = session.Eval
)

// Reply is one answer to a locally issued Query, with its resource key
// already resolved to a full textual name.
type Reply struct {
	Key     string
	Payload []byte
}

// Session wraps an internal/session.Session with id allocation, a
// background reader, fragment reassembly, and query/reply correlation.
type Session struct {
	core     *session.Session
	link     link.Link
	logger   *slog.Logger
	streamed bool

	resIDs idAllocator
	subIDs idAllocator
	qleIDs idAllocator
	qIDs   idAllocator

	pendingMu sync.Mutex
	pending   map[uint64]*pendingQuery

	rxFrag []byte
}

// Open binds a session to l using cfg. logger may be nil, in which case
// slog.Default() is used.
func Open(l link.Link, cfg config.SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	core := session.New(l, session.Config{
		SNResolution: cfg.SNResolution,
		IsStreamed:   cfg.IsStreamed,
		FragBufChunk: cfg.FragBufChunk,
		WriteBufSize: cfg.WriteBufSize,
	})
	s := &Session{
		core:     core,
		link:     l,
		logger:   logger.With(slog.String("component", "zenoh.session")),
		streamed: l.IsStreamed(),
		pending:  make(map[uint64]*pendingQuery),
	}
	core.SetDisconnectHook(s.handleDisconnect)
	return s
}

// SetMetrics installs the Prometheus collector the underlying session
// reports to. Passing nil disables instrumentation.
func (s *Session) SetMetrics(m *zenohmetrics.Collector) {
	s.core.SetMetrics(m)
}

// Close closes the underlying link, unblocking a Run goroutine parked in
// a pending Read.
func (s *Session) Close() error {
	return s.link.Close()
}

func (s *Session) handleDisconnect() {
	s.logger.Warn("link write failed sending a terminal query reply")
}

// Declare assigns a fresh resource id to name, registers it in the local
// resource table, and announces it to the peer. Later Subscribe/Publish/
// Queryable/Query calls on the same name still work without a prior
// Declare — aliasing is purely an optimization over the resource table
// underneath, not a precondition.
func (s *Session) Declare(name string) (uint64, error) {
	id := s.resIDs.Next()
	key := session.ResourceKey{RID: session.NoRID, RName: name}
	msg := wire.Declare{Kind: wire.DeclResource, RID: id, Key: key}
	if err := s.core.SendZenohMessage(msg, Reliable, Block); err != nil {
		return 0, fmt.Errorf("zenoh: declare %q: %w", name, err)
	}
	s.core.DeclareResource(session.Local, id, key)
	return id, nil
}

// Undeclare removes a locally declared resource id. It does not announce
// the removal to the peer (no wire DeclForgetResource is sent); use
// Declare's returned id defensively once this is called.
func (s *Session) Undeclare(id uint64) {
	s.core.UndeclareResource(session.Local, id)
}

// Subscribe registers cb to receive every sample whose resolved key
// intersects keyexpr and returns the local subscriber id.
func (s *Session) Subscribe(keyexpr string, cb func(Sample)) (uint64, error) {
	id := s.subIDs.Next()
	sub := session.Subscriber{
		ID:       id,
		Key:      session.ResourceKey{RID: session.NoRID, RName: keyexpr},
		Callback: cb,
	}
	if err := s.core.RegisterSubscription(session.Local, sub); err != nil {
		return 0, fmt.Errorf("zenoh: subscribe %q: %w", keyexpr, err)
	}
	return id, nil
}

// Unsubscribe removes a local subscriber by id.
func (s *Session) Unsubscribe(id uint64) {
	s.core.UnregisterSubscription(session.Local, id)
}

// Publish sends payload under keyexpr with the given reliability and
// congestion policy.
func (s *Session) Publish(keyexpr string, payload []byte, reliability Reliability, cong CongestionControl) error {
	msg := wire.Data{Key: wire.ResKey{RID: session.NoRID, RName: keyexpr}, Payload: payload}
	if err := s.core.SendZenohMessage(msg, reliability, cong); err != nil {
		return fmt.Errorf("zenoh: publish %q: %w", keyexpr, err)
	}
	return nil
}

// Queryable registers cb to answer queries whose resolved key intersects
// keyexpr and whose target kind matches kind, returning the local
// queryable id.
//
// TriggerQueryables only ever sends the terminal reply-closing UNIT
// itself; actually answering with data is this facade's job, so cb's
// return value is wrapped into a wire.Reply send here, issued while
// TriggerQueryables still holds its registry mutex — permitted by the one
// lock-order invariant the core documents (that mutex may be held across
// the transmit mutex, never the reverse).
func (s *Session) Queryable(keyexpr string, kind uint32, cb session.QueryCallback) (uint64, error) {
	id := s.qleIDs.Next()
	qle := session.Queryable{
		ID:   id,
		Key:  session.ResourceKey{RID: session.NoRID, RName: keyexpr},
		Kind: kind,
		Callback: func(q session.QueryMsg) ([]byte, bool) {
			payload, ok := cb(q)
			if ok {
				reply := wire.Reply{
					QID:         q.QID,
					ReplierKind: 0,
					Key:         wire.ResKey{RID: session.NoRID, RName: q.Key},
					Payload:     payload,
				}
				if err := s.core.SendZenohMessage(reply, Reliable, Block); err != nil {
					s.logger.Warn("failed to send query reply", slog.Any("error", err))
				}
			}
			return payload, ok
		},
	}
	if err := s.core.RegisterQueryable(qle); err != nil {
		return 0, fmt.Errorf("zenoh: queryable %q: %w", keyexpr, err)
	}
	return id, nil
}

// Unregister removes a local queryable by id.
func (s *Session) Unregister(id uint64) {
	s.core.UnregisterQueryable(id)
}
