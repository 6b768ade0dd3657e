package session

import (
	"fmt"

	"github.com/gabrik/zenoh-pico-go/internal/keyexpr"
	"github.com/gabrik/zenoh-pico-go/internal/wire"
)

// RegisterQueryable adds qle to local_queryables.
//
// Unlike RegisterSubscription, uniqueness here is by ID, not by key: a
// second registration with a duplicate id fails with
// ErrDuplicateRegistration regardless of its key.
func (s *Session) RegisterQueryable(qle Queryable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.localQueryables {
		if existing.ID == qle.ID {
			return ErrDuplicateRegistration
		}
	}
	s.localQueryables = append(s.localQueryables, qle)
	s.updateRegistryGaugesLocked()
	return nil
}

// UnregisterQueryable removes the first queryable with the given id.
//
// As with UnregisterSubscription, this does not purge remResLocQleMap;
// see the matching note there.
func (s *Session) UnregisterQueryable(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, qle := range s.localQueryables {
		if qle.ID == id {
			s.localQueryables = append(s.localQueryables[:i], s.localQueryables[i+1:]...)
			s.updateRegistryGaugesLocked()
			return
		}
	}
}

// GetQueryableByID returns the queryable with the given id.
func (s *Session) GetQueryableByID(id uint64) (Queryable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, qle := range s.localQueryables {
		if qle.ID == id {
			return qle, true
		}
	}
	return Queryable{}, false
}

func (s *Session) getQueryablesFromRemoteKeyLocked(reskey ResourceKey) []Queryable {
	switch {
	case reskey.HasRID() && reskey.RName == "":
		out := make([]Queryable, len(s.remResLocQleMap[reskey.RID]))
		copy(out, s.remResLocQleMap[reskey.RID])
		return out
	case !reskey.HasRID():
		return s.matchLocalQueryablesByName(reskey.RName)
	default:
		name, err := s.resolveLocked(Remote, reskey)
		if err != nil {
			return nil
		}
		return s.matchLocalQueryablesByName(name)
	}
}

// matchLocalQueryablesByName scans local_queryables, including each whose
// resolved name intersects name. As in matchLocalSubscribersByName, a
// queryable whose own key fails to resolve is skipped and the scan
// advances past it.
func (s *Session) matchLocalQueryablesByName(name string) []Queryable {
	var out []Queryable
	for _, qle := range s.localQueryables {
		qleName, err := s.resolveLocked(Local, qle.Key)
		if err != nil {
			continue
		}
		if keyexpr.Intersect(qleName, name) {
			out = append(out, qle)
		}
	}
	return out
}

// GetQueryablesFromRemoteKey is the public, locking form of
// getQueryablesFromRemoteKeyLocked.
func (s *Session) GetQueryablesFromRemoteKey(reskey ResourceKey) []Queryable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getQueryablesFromRemoteKeyLocked(reskey)
}

// OnRemoteResourceDeclaredQueryables is the queryable analogue of
// OnRemoteResourceDeclared: an empty match set is a no-op, leaving any
// prior entry at id in place.
func (s *Session) OnRemoteResourceDeclaredQueryables(id uint64, reskey ResourceKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.getQueryablesFromRemoteKeyLocked(reskey)
	if len(matches) == 0 {
		return
	}
	s.remResLocQleMap[id] = matches
}

// kindMatches reports whether a queryable with kind qleKind should answer
// a query with the given targetKind, per zenoh-pico's ZN_QUERYABLE_ALL_KINDS
// wildcard convention: the target matches every queryable when its
// AllKinds bit is set, or when the two kind masks otherwise overlap.
func kindMatches(targetKind, qleKind uint32) bool {
	return targetKind&AllKinds != 0 || targetKind&qleKind != 0
}

// TriggerQueryables delivers one inbound QUERY to every matching
// queryable (in registration order, while holding mu), then sends a
// terminal UNIT transport message to close the query on the wire.
//
// reskey is classified exactly as in TriggerSubscriptions: pure-id
// resolves the REMOTE resource's key to a full name, pure-name uses
// reskey.RName directly, and id+suffix resolves reskey against the
// REMOTE resource table. A resolve failure (ErrUnknownRID) is a no-op:
// no queryable is invoked, but the terminal UNIT is still sent so the
// query is not left open on the wire.
//
// If the terminal reply's link write fails, on_disconnect is invoked and
// the write is retried exactly once; a second failure is returned to the
// caller. mu is held for the whole call, including the reply write — this
// is the one lock-order invariant callers of the transmit pipeline from
// within a trigger must honor (mu may be held across muTx acquisition,
// never the reverse).
func (s *Session) TriggerQueryables(reskey ResourceKey, predicate string, qid uint64, targetKind uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, matches, resolved := s.resolveQueryMatchesLocked(reskey)
	if resolved {
		query := QueryMsg{Key: name, Predicate: predicate, QID: qid, TargetKind: targetKind}
		for _, qle := range matches {
			if !kindMatches(targetKind, qle.Kind) {
				continue
			}
			qle.Callback(query)
		}
	}

	return s.sendTerminalUnitLocked(qid)
}

// resolveQueryMatchesLocked resolves reskey to a full name and the set of
// local queryables matching it, following the same three-case
// classification trigger_subscriptions uses. resolved is false only when
// the pure-id or id+suffix form references an unknown remote resource.
func (s *Session) resolveQueryMatchesLocked(reskey ResourceKey) (name string, matches []Queryable, resolved bool) {
	switch {
	case reskey.HasRID() && reskey.RName == "":
		remote, ok := s.resourceByIDLocked(Remote, reskey.RID)
		if !ok {
			return "", nil, false
		}
		resolvedName, err := s.resolveLocked(Remote, remote.Key)
		if err != nil {
			return "", nil, false
		}
		return resolvedName, s.matchLocalQueryablesByName(resolvedName), true

	case !reskey.HasRID():
		return reskey.RName, s.matchLocalQueryablesByName(reskey.RName), true

	default:
		resolvedName, err := s.resolveLocked(Remote, reskey)
		if err != nil {
			return "", nil, false
		}
		return resolvedName, s.matchLocalQueryablesByName(resolvedName), true
	}
}

// sendTerminalUnitLocked sends the reply context {qid, replier_kind=0,
// Final=true} as a transport UNIT message, retrying once via
// on_disconnect on failure. Assumes mu is already held by the caller.
func (s *Session) sendTerminalUnitLocked(qid uint64) error {
	unit := wire.Unit{QID: qid, ReplierKind: 0, Final: true}
	err := s.sendTransportMessage(unit)
	if err == nil {
		return nil
	}
	if s.onDisconnect != nil {
		s.onDisconnect()
	}
	err = s.sendTransportMessage(unit)
	if err != nil {
		return fmt.Errorf("trigger queryables: terminal unit retry failed: %w", err)
	}
	return nil
}

// FlushQueryables drains local_queryables and the index map.
func (s *Session) FlushQueryables() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localQueryables = nil
	s.remResLocQleMap = make(map[uint64][]Queryable)
	s.updateRegistryGaugesLocked()
}
