package session

import "fmt"

// Exported operations lock mu themselves; the "Locked" suffix marks
// internal helpers that assume the caller already holds mu, mirroring the
// zenoh-pico "__unsafe_*" convention: the lock is acquired once by the
// calling public operation and the leaf mutators never relock.

func (s *Session) resourcesFor(locality Locality) []Resource {
	if locality == Local {
		return s.localResources
	}
	return s.remoteResources
}

func (s *Session) setResourcesFor(locality Locality, rs []Resource) {
	if locality == Local {
		s.localResources = rs
	} else {
		s.remoteResources = rs
	}
}

// resourceByIDLocked returns the Resource with the given id in locality,
// or false if none exists.
func (s *Session) resourceByIDLocked(locality Locality, id uint64) (Resource, bool) {
	for _, r := range s.resourcesFor(locality) {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// ResourceByID is the public, locking form of resourceByIDLocked.
func (s *Session) ResourceByID(locality Locality, id uint64) (Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resourceByIDLocked(locality, id)
}

// resourceMatchingKeyLocked returns a declaration in locality whose
// fully-resolved name equals the given key's fully-resolved name (exact
// string equality, not intersection).
func (s *Session) resourceMatchingKeyLocked(locality Locality, key ResourceKey) (Resource, bool) {
	name, err := s.resolveLocked(locality, key)
	if err != nil {
		return Resource{}, false
	}
	for _, r := range s.resourcesFor(locality) {
		rn, err := s.resolveLocked(locality, r.Key)
		if err != nil {
			continue
		}
		if rn == name {
			return r, true
		}
	}
	return Resource{}, false
}

// ResourceMatchingKey is the public, locking form of resourceMatchingKeyLocked.
func (s *Session) ResourceMatchingKey(locality Locality, key ResourceKey) (Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resourceMatchingKeyLocked(locality, key)
}

// resolveLocked computes the full textual name denoted by key. If
// key.RID == NoRID, key.RName is already the full name. Otherwise it looks
// up the Resource with id key.RID in locality, recursively resolves that
// Resource's own key, and concatenates the suffix key.RName.
//
// Returns ErrUnknownRID if the alias chain breaks. Go's strings are always
// owned and immutable, so — unlike the source this is grounded on — there
// is no borrowed/owned distinction for callers to track.
func (s *Session) resolveLocked(locality Locality, key ResourceKey) (string, error) {
	if !key.HasRID() {
		return key.RName, nil
	}
	r, ok := s.resourceByIDLocked(locality, key.RID)
	if !ok {
		return "", fmt.Errorf("resolve rid %d in %s: %w", key.RID, locality, ErrUnknownRID)
	}
	prefix, err := s.resolveLocked(locality, r.Key)
	if err != nil {
		return "", err
	}
	return prefix + key.RName, nil
}

// Resolve is the public, locking form of resolveLocked.
func (s *Session) Resolve(locality Locality, key ResourceKey) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(locality, key)
}

// DeclareResource binds id to key within locality, appending to the
// corresponding resource table. Session lifecycle / handshake concerns
// (id allocation, wire DECLARE encoding) are out of scope here; this only
// maintains the table.
func (s *Session) DeclareResource(locality Locality, id uint64, key ResourceKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setResourcesFor(locality, append(s.resourcesFor(locality), Resource{ID: id, Locality: locality, Key: key}))
}

// UndeclareResource removes the first Resource with the given id from
// locality's table.
func (s *Session) UndeclareResource(locality Locality, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.resourcesFor(locality)
	for i, r := range rs {
		if r.ID == id {
			s.setResourcesFor(locality, append(rs[:i], rs[i+1:]...))
			return
		}
	}
}
