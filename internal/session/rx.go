// This file implements the receive dispatcher: routing one decoded zenoh
// message to the registries and, for DECLARE(resource), updating the
// remote resource table and its dependent indexes. Grounded on
// zenoh-pico's zenoh/session/subscription.c (_zn_trigger_subscriptions)
// and queryable.c (_zn_trigger_queryables), invoked from the session's
// reader path. Declarations and triggers from the same peer are
// serialized by mu.
package session

import (
	"fmt"

	"github.com/gabrik/zenoh-pico-go/internal/wire"
)

// Dispatch routes one decoded inbound zenoh message to the appropriate
// registry. Byte-level decoding happens upstream (out of scope for this
// package); Dispatch is handed an already-decoded wire.ZenohMessage.
func (s *Session) Dispatch(msg wire.ZenohMessage) error {
	switch m := msg.(type) {
	case wire.Data:
		s.recordDispatch("data")
		s.TriggerSubscriptions(m.Key, m.Payload)
		return nil

	case wire.Query:
		s.recordDispatch("query")
		return s.TriggerQueryables(m.Key, m.Predicate, m.QID, m.TargetKind)

	case wire.Declare:
		s.recordDispatch("declare")
		return s.dispatchDeclare(m)

	case wire.Reply:
		s.recordDispatch("reply")
		// Replies to locally-issued queries are routed by the public
		// facade's pending-query table, outside this package's scope.
		return nil

	default:
		return fmt.Errorf("dispatch: unhandled zenoh message type %T", msg)
	}
}

func (s *Session) recordDispatch(kind string) {
	if m := s.metrics.Load(); m != nil {
		m.IncDispatch(kind)
	}
}

// dispatchDeclare handles a peer's DECLARE(resource) by inserting it into
// remote_resources and recomputing the dependent subscriber/queryable
// indexes for that remote id. The subscriber/queryable DECLARE sub-kinds
// and their forget forms are session-handshake concerns this package does
// not own (out of scope) and are ignored; dispatchDeclare only handles
// DeclResource and DeclForgetResource, the latter by removing the entry
// from remote_resources.
func (s *Session) dispatchDeclare(d wire.Declare) error {
	switch d.Kind {
	case wire.DeclResource:
		s.DeclareResource(Remote, d.RID, d.Key)
		s.OnRemoteResourceDeclared(d.RID, d.Key)
		s.OnRemoteResourceDeclaredQueryables(d.RID, d.Key)
		return nil
	case wire.DeclForgetResource:
		s.UndeclareResource(Remote, d.RID)
		return nil
	default:
		return nil
	}
}
