// Package session implements the client-side session dispatch engine: the
// resource table and key resolver, the subscription and queryable
// registries, sequence-number arithmetic, the transmit pipeline (framing,
// fragmentation, congestion control), and the receive dispatcher.
//
// The message semantics mirror the reference session/subscription/queryable/
// transport implementation this package is derived from; the struct layout,
// sentinel-error, and locking idiom follow this repository's established
// Go conventions.
package session

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gabrik/zenoh-pico-go/internal/link"
	zenohmetrics "github.com/gabrik/zenoh-pico-go/internal/metrics"
	"github.com/gabrik/zenoh-pico-go/internal/wire"
)

// ResourceKey is the wire-level (rid, rname) addressing pair. Exactly one
// of the pure-id (RID set, RName empty), pure-name (RID unset), or
// id+suffix forms is valid per key.
type ResourceKey = wire.ResKey

// NoRID is the distinguished resource-id value meaning "no alias used".
const NoRID = wire.NoRID

// Locality distinguishes declarations and subscriptions made by this node
// (Local) from ones announced by the peer (Remote).
type Locality uint8

const (
	Local Locality = iota
	Remote
)

func (l Locality) String() string {
	if l == Local {
		return "Local"
	}
	return "Remote"
}

// Reliability selects which sequence-number space a message uses.
type Reliability uint8

const (
	Reliable Reliability = iota
	BestEffort
)

// CongestionControl selects the admission-control policy applied at the
// transmit mutex.
type CongestionControl uint8

const (
	// Block acquires the transmit mutex unconditionally, waiting as long
	// as necessary.
	Block CongestionControl = iota
	// Drop tries the transmit mutex and silently skips the send if it is
	// already held.
	Drop
)

// Sentinel errors. Kinds, not instances: registry and resolver failures
// are returned directly to the caller; transmit failures are additionally
// logged by the caller.
var (
	// ErrDuplicateRegistration is returned by RegisterSubscription when a
	// subscriber with the same ResourceKey already exists in the target
	// list, or by RegisterQueryable when a queryable with the same id
	// already exists.
	ErrDuplicateRegistration = errors.New("session: duplicate registration")

	// ErrUnknownRID is returned by Resolve when a resource-id reference
	// cannot be chased to a declared Resource.
	ErrUnknownRID = errors.New("session: unknown resource id")

	// ErrLinkWriteFailed wraps a link I/O error from the transmit pipeline.
	ErrLinkWriteFailed = errors.New("session: link write failed")

	// ErrCannotFragment is returned when the expandable fragmentation
	// buffer itself cannot hold the fully encoded zenoh message.
	ErrCannotFragment = errors.New("session: cannot fragment message")
)

// Resource is a declaration binding a numeric id to a textual key within
// one side (local or remote) of the session. Lifetime runs from DECLARE
// until UNDECLARE or session close.
type Resource struct {
	ID       uint64
	Locality Locality
	Key      ResourceKey
}

// SubInfo carries a subscriber's declared delivery parameters.
type SubInfo struct {
	Reliability Reliability
	Mode        string // e.g. "push" or "pull"; opaque to this layer
	Period      int64  // pull period in microseconds, 0 if not periodic
}

// Sample is the (key, value) pair delivered to a subscriber callback.
type Sample struct {
	Key     string
	Payload []byte
}

// DataCallback receives one sample.
type DataCallback func(Sample)

// Subscriber is a local or remote subscription announcement.
//
// A local subscriber is uniquely identified within the session by its
// ResourceKey (both RID and RName equal) — NOT by ID. IDs may repeat
// across local subscribers; this asymmetry with Queryable is preserved
// because the source it is grounded on preserves it.
type Subscriber struct {
	ID       uint64
	Key      ResourceKey
	Info     SubInfo
	Callback DataCallback
}

// QueryMsg is the inbound query delivered to a queryable callback.
type QueryMsg struct {
	Key        string
	Predicate  string
	QID        uint64
	TargetKind uint32
}

// QueryCallback receives one query. It returns the reply payload. A
// queryable that has nothing to answer should return ok=false.
type QueryCallback func(QueryMsg) (payload []byte, ok bool)

// Queryable is a local request-response handler.
//
// Uniqueness on registration is by ID, not by key, unlike Subscriber.
type Queryable struct {
	ID       uint64
	Key      ResourceKey
	Kind     uint32
	Callback QueryCallback
}

// Queryable kind bits (zenoh-pico protocol/utils.h ZN_QUERYABLE_*).
// AllKinds is a wildcard flag: a query whose TargetKind has it set matches
// every queryable regardless of the queryable's own Kind.
const (
	AllKinds uint32 = 0x01
	Storage  uint32 = 0x02
	Eval     uint32 = 0x04
)

// DisconnectHook is invoked by the transmit pipeline when a link write
// fails while sending a terminal query reply.
type DisconnectHook func()

// Session holds all per-connection mutable state. Field names mirror the
// zenoh-pico C session struct so the grounding in subscription.c,
// queryable.c, and tx.c carries over directly.
type Session struct {
	// mu guards the registries, resource tables, and index maps
	// (mutex_inner). It may be held across a muTx acquisition — never the
	// reverse.
	mu sync.Mutex

	localResources  []Resource
	remoteResources []Resource

	localSubscriptions  []Subscriber
	remoteSubscriptions []Subscriber
	localQueryables     []Queryable

	// remResLocSubMap maps a remote resource id to the local subscribers
	// whose resolved key intersects that remote resource's resolved key.
	remResLocSubMap map[uint64][]Subscriber
	// remResLocQleMap is the queryable analogue of remResLocSubMap.
	remResLocQleMap map[uint64][]Queryable

	// muTx guards wbuf, fbf, the sequence counters, and ordered link
	// writes (mutex_tx). Independent of mu: code must never hold both at
	// once in the reverse order.
	muTx sync.Mutex

	snTxReliable   uint64
	snTxBestEffort uint64
	snResolution   uint64
	snResolutionHalf uint64

	wbuf *wire.Buf

	// fragBufChunk sizes the initial allocation of the expandable
	// fragmentation buffer fbf.
	fragBufChunk int

	link link.Link

	// transmitted is set true on any successful link write.
	transmitted atomic.Bool

	onDisconnect DisconnectHook

	// metrics is nil unless SetMetrics is called; every recording helper
	// checks for nil so instrumentation is strictly optional. An
	// atomic.Pointer rather than a plain field because tx.go and rx.go
	// read it under muTx or no lock at all, while SetMetrics can be
	// called concurrently with traffic.
	metrics atomic.Pointer[zenohmetrics.Collector]
}

// Config fixes the session parameters at open time.
type Config struct {
	SNResolution uint64
	IsStreamed   bool
	FragBufChunk int
	WriteBufSize int
}

// DefaultFragBufChunk is the initial allocation size for the expandable
// fragmentation buffer when Config.FragBufChunk is left zero.
const DefaultFragBufChunk = 4096

// DefaultWriteBufSize is the size of the reusable write buffer when
// Config.WriteBufSize is left zero.
const DefaultWriteBufSize = 2048

// New opens a session over l with the given configuration.
func New(l link.Link, cfg Config) *Session {
	if cfg.FragBufChunk == 0 {
		cfg.FragBufChunk = DefaultFragBufChunk
	}
	if cfg.WriteBufSize == 0 {
		cfg.WriteBufSize = DefaultWriteBufSize
	}
	return &Session{
		remResLocSubMap:  make(map[uint64][]Subscriber),
		remResLocQleMap:  make(map[uint64][]Queryable),
		snResolution:     cfg.SNResolution,
		snResolutionHalf: cfg.SNResolution / 2,
		wbuf:             wire.NewBuf(cfg.WriteBufSize),
		fragBufChunk:     cfg.FragBufChunk,
		link:             l,
	}
}

// SetDisconnectHook installs the callback invoked when a link write fails
// while sending a terminal query reply.
func (s *Session) SetDisconnectHook(hook DisconnectHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = hook
}

// Transmitted reports whether any link write has ever succeeded.
func (s *Session) Transmitted() bool {
	return s.transmitted.Load()
}

// SetMetrics installs the Prometheus collector this session reports to.
// Passing nil (the default) disables instrumentation. Safe to call
// concurrently with traffic; tx.go and rx.go read the installed collector
// without holding mu.
func (s *Session) SetMetrics(m *zenohmetrics.Collector) {
	s.metrics.Store(m)
}

func reliabilityLabel(reliability Reliability) string {
	if reliability == Reliable {
		return "reliable"
	}
	return "best_effort"
}

// updateRegistryGaugesLocked refreshes the subscriber and queryable gauges
// from the current registry sizes. Assumes mu is already held. No-op if no
// collector is installed.
func (s *Session) updateRegistryGaugesLocked() {
	m := s.metrics.Load()
	if m == nil {
		return
	}
	m.SetSubscribers("local", len(s.localSubscriptions))
	m.SetSubscribers("remote", len(s.remoteSubscriptions))
	m.SetQueryables(len(s.localQueryables))
}
