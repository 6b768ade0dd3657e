package session

import "github.com/gabrik/zenoh-pico-go/internal/keyexpr"

func keyEqual(a, b ResourceKey) bool {
	return a.RID == b.RID && a.RName == b.RName
}

func (s *Session) subsFor(locality Locality) []Subscriber {
	if locality == Local {
		return s.localSubscriptions
	}
	return s.remoteSubscriptions
}

func (s *Session) setSubsFor(locality Locality, subs []Subscriber) {
	if locality == Local {
		s.localSubscriptions = subs
	} else {
		s.remoteSubscriptions = subs
	}
}

// RegisterSubscription adds sub to locality's subscriber list.
//
// Uniqueness is by ResourceKey (both RID and RName), not by ID — a second
// registration with the same id but a different key succeeds; a second
// registration with the same key fails with ErrDuplicateRegistration. This
// asymmetry with RegisterQueryable is intentional (I2).
//
// When locality is Local, this additionally scans remote_resources for any
// remote declaration whose resolved name intersects sub's resolved name,
// and appends sub to remResLocSubMap for each match (I3).
func (s *Session) RegisterSubscription(locality Locality, sub Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subsFor(locality) {
		if keyEqual(existing.Key, sub.Key) {
			return ErrDuplicateRegistration
		}
	}
	s.setSubsFor(locality, append(s.subsFor(locality), sub))
	s.updateRegistryGaugesLocked()

	if locality != Local {
		return nil
	}
	subName, err := s.resolveLocked(Local, sub.Key)
	if err != nil {
		return nil
	}
	for _, remote := range s.remoteResources {
		remoteName, err := s.resolveLocked(Remote, remote.Key)
		if err != nil {
			continue
		}
		if keyexpr.Intersect(subName, remoteName) {
			s.remResLocSubMap[remote.ID] = append(s.remResLocSubMap[remote.ID], sub)
		}
	}
	return nil
}

// UnregisterSubscription removes the first subscriber with the given id
// from locality's list.
//
// This does NOT purge matching entries from remResLocSubMap; a stale
// Subscriber reference may remain reachable from the index until the next
// on_remote_resource_declared rebuild for the same remote id, or until
// session teardown. This is an acknowledged simplification, preserved
// because the source it is grounded on tolerates the same staleness.
func (s *Session) UnregisterSubscription(locality Locality, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subsFor(locality)
	for i, sub := range subs {
		if sub.ID == id {
			s.setSubsFor(locality, append(subs[:i], subs[i+1:]...))
			s.updateRegistryGaugesLocked()
			return
		}
	}
}

// GetSubscriptionByID returns the first subscriber with the given id in
// locality's list.
func (s *Session) GetSubscriptionByID(locality Locality, id uint64) (Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subsFor(locality) {
		if sub.ID == id {
			return sub, true
		}
	}
	return Subscriber{}, false
}

// GetSubscriptionByKey returns the first subscriber whose key equals key
// exactly (both RID and RName) in locality's list.
func (s *Session) GetSubscriptionByKey(locality Locality, key ResourceKey) (Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subsFor(locality) {
		if keyEqual(sub.Key, key) {
			return sub, true
		}
	}
	return Subscriber{}, false
}

// getSubscriptionsFromRemoteKeyLocked computes the list of local
// subscribers that would match a hypothetical remote declaration with the
// given key, branching on the key's form.
func (s *Session) getSubscriptionsFromRemoteKeyLocked(reskey ResourceKey) []Subscriber {
	switch {
	case reskey.HasRID() && reskey.RName == "":
		// pure-id
		out := make([]Subscriber, len(s.remResLocSubMap[reskey.RID]))
		copy(out, s.remResLocSubMap[reskey.RID])
		return out

	case !reskey.HasRID():
		// pure-name
		return s.matchLocalSubscribersByName(reskey.RName)

	default:
		// id+suffix: resolve against the REMOTE resource table.
		name, err := s.resolveLocked(Remote, reskey)
		if err != nil {
			return nil
		}
		return s.matchLocalSubscribersByName(name)
	}
}

// matchLocalSubscribersByName scans local_subscriptions, including each
// whose resolved name intersects name. A subscriber whose own key fails to
// resolve (ErrUnknownRID) is skipped — and the scan advances past it,
// fixing the latent infinite loop the source this is grounded on exhibits
// when it continues without advancing its cursor.
func (s *Session) matchLocalSubscribersByName(name string) []Subscriber {
	var out []Subscriber
	for _, sub := range s.localSubscriptions {
		subName, err := s.resolveLocked(Local, sub.Key)
		if err != nil {
			continue
		}
		if keyexpr.Intersect(subName, name) {
			out = append(out, sub)
		}
	}
	return out
}

// GetSubscriptionsFromRemoteKey is the public, locking form of
// getSubscriptionsFromRemoteKeyLocked.
func (s *Session) GetSubscriptionsFromRemoteKey(reskey ResourceKey) []Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSubscriptionsFromRemoteKeyLocked(reskey)
}

// OnRemoteResourceDeclared is invoked when the peer declares a new
// resource. It recomputes the matching-subscribers list for that remote
// id and replaces any prior entry at remResLocSubMap[id]. An empty match
// set is a no-op: it leaves any prior entry at id in place rather than
// clearing it.
func (s *Session) OnRemoteResourceDeclared(id uint64, reskey ResourceKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.getSubscriptionsFromRemoteKeyLocked(reskey)
	if len(matches) == 0 {
		return
	}
	s.remResLocSubMap[id] = matches
}

// TriggerSubscriptions delivers one inbound DATA message, branching on the
// key's form exactly as getSubscriptionsFromRemoteKeyLocked does, and
// invokes every matching subscriber's callback while holding mu. Callbacks
// must not re-enter session registration APIs (doing so deadlocks) and
// must not perform unbounded work.
func (s *Session) TriggerSubscriptions(reskey ResourceKey, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case reskey.HasRID() && reskey.RName == "":
		remote, ok := s.resourceByIDLocked(Remote, reskey.RID)
		if !ok {
			return
		}
		name, err := s.resolveLocked(Remote, remote.Key)
		if err != nil {
			return
		}
		sample := Sample{Key: name, Payload: payload}
		for _, sub := range s.remResLocSubMap[reskey.RID] {
			sub.Callback(sample)
		}

	case !reskey.HasRID():
		sample := Sample{Key: reskey.RName, Payload: payload}
		for _, sub := range s.matchLocalSubscribersByName(reskey.RName) {
			sub.Callback(sample)
		}

	default:
		name, err := s.resolveLocked(Remote, reskey)
		if err != nil {
			return
		}
		sample := Sample{Key: name, Payload: payload}
		for _, sub := range s.matchLocalSubscribersByName(name) {
			sub.Callback(sample)
		}
	}
}

// FlushSubscriptions drains both subscriber lists and the index map.
func (s *Session) FlushSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localSubscriptions = nil
	s.remoteSubscriptions = nil
	s.remResLocSubMap = make(map[uint64][]Subscriber)
	s.updateRegistryGaugesLocked()
}
