package session

import (
	"bytes"
	"testing"
)

func newTestSession(t *testing.T) (*Session, *recordingLink) {
	t.Helper()
	l := newRecordingLink(true)
	s := New(l, Config{SNResolution: 128})
	return s, l
}

// TestAliasedPublish is scenario 2: a local resource and a local
// subscriber both declared by rname only; an inbound DATA addressed by
// name reaches the subscriber exactly once.
func TestAliasedPublish(t *testing.T) {
	s, _ := newTestSession(t)

	s.DeclareResource(Local, 7, ResourceKey{RID: NoRID, RName: "/s/1"})

	var got []Sample
	sub := Subscriber{
		ID:  100,
		Key: ResourceKey{RID: NoRID, RName: "/s/*"},
		Callback: func(sample Sample) {
			got = append(got, sample)
		},
	}
	if err := s.RegisterSubscription(Local, sub); err != nil {
		t.Fatalf("register subscription: %v", err)
	}

	s.TriggerSubscriptions(ResourceKey{RID: NoRID, RName: "/s/1"}, []byte("payload"))

	if len(got) != 1 {
		t.Fatalf("callback invoked %d times, want 1", len(got))
	}
	if got[0].Key != "/s/1" || !bytes.Equal(got[0].Payload, []byte("payload")) {
		t.Fatalf("sample = %+v, want key /s/1", got[0])
	}
}

// TestIDPrefixedPublish is scenario 3: the peer declares a remote
// resource with a numeric alias, then publishes using id+suffix. A local
// subscriber on the resolved full name receives one sample with that key.
func TestIDPrefixedPublish(t *testing.T) {
	s, _ := newTestSession(t)

	var got []Sample
	sub := Subscriber{
		ID:  1,
		Key: ResourceKey{RID: NoRID, RName: "/a/b"},
		Callback: func(sample Sample) {
			got = append(got, sample)
		},
	}
	if err := s.RegisterSubscription(Local, sub); err != nil {
		t.Fatalf("register subscription: %v", err)
	}

	// Peer declares remote resource {id=42, key=("/a", rid=NONE)}; the
	// receive dispatcher would call DeclareResource then
	// OnRemoteResourceDeclared for a DECLARE(resource) message (rx.go).
	s.DeclareResource(Remote, 42, ResourceKey{RID: NoRID, RName: "/a"})
	s.OnRemoteResourceDeclared(42, ResourceKey{RID: NoRID, RName: "/a"})

	// Peer publishes DATA with reskey=(rid=42, rname="/b").
	s.TriggerSubscriptions(ResourceKey{RID: 42, RName: "/b"}, []byte("v"))

	if len(got) != 1 {
		t.Fatalf("callback invoked %d times, want 1", len(got))
	}
	if got[0].Key != "/a/b" {
		t.Fatalf("sample key = %q, want /a/b", got[0].Key)
	}
}

// TestDuplicateSubscriptionKeyRejected covers I2: a second
// RegisterSubscription with the same key fails.
func TestDuplicateSubscriptionKeyRejected(t *testing.T) {
	s, _ := newTestSession(t)
	key := ResourceKey{RID: NoRID, RName: "/x"}
	if err := s.RegisterSubscription(Local, Subscriber{ID: 1, Key: key, Callback: func(Sample) {}}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// Same key, different id: must be rejected.
	err := s.RegisterSubscription(Local, Subscriber{ID: 2, Key: key, Callback: func(Sample) {}})
	if err != ErrDuplicateRegistration {
		t.Fatalf("err = %v, want ErrDuplicateRegistration", err)
	}
	// Same id, different key: must succeed (uniqueness is by key, not id).
	if err := s.RegisterSubscription(Local, Subscriber{ID: 1, Key: ResourceKey{RID: NoRID, RName: "/y"}, Callback: func(Sample) {}}); err != nil {
		t.Fatalf("same id, different key: %v", err)
	}
}

// TestDuplicateQueryableIDRejected covers I2's queryable asymmetry:
// uniqueness is by id, not by key.
func TestDuplicateQueryableIDRejected(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.RegisterQueryable(Queryable{ID: 1, Key: ResourceKey{RID: NoRID, RName: "/a"}, Kind: AllKinds}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := s.RegisterQueryable(Queryable{ID: 1, Key: ResourceKey{RID: NoRID, RName: "/b"}, Kind: AllKinds})
	if err != ErrDuplicateRegistration {
		t.Fatalf("err = %v, want ErrDuplicateRegistration", err)
	}
}

// TestUnregisterSubscriptionDoesNotPurgeIndex documents the preserved
// simplification: unregistering a subscriber leaves stale entries in
// remResLocSubMap until the next index rebuild or teardown.
func TestUnregisterSubscriptionDoesNotPurgeIndex(t *testing.T) {
	s, _ := newTestSession(t)
	s.DeclareResource(Remote, 1, ResourceKey{RID: NoRID, RName: "/a"})
	if err := s.RegisterSubscription(Local, Subscriber{ID: 9, Key: ResourceKey{RID: NoRID, RName: "/a"}, Callback: func(Sample) {}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.OnRemoteResourceDeclared(1, ResourceKey{RID: NoRID, RName: "/a"})

	if subs := s.remResLocSubMap[1]; len(subs) != 1 {
		t.Fatalf("index has %d entries before unregister, want 1", len(subs))
	}

	s.UnregisterSubscription(Local, 9)

	if subs := s.remResLocSubMap[1]; len(subs) != 1 {
		t.Fatalf("index has %d entries after unregister, want 1 (unpurged)", len(subs))
	}
}

// TestOnRemoteResourceDeclaredEmptyMatchIsNoOp covers the case where a
// remote id is re-declared under a key matching no local subscribers: the
// prior remResLocSubMap entry for that id must survive, not be cleared.
func TestOnRemoteResourceDeclaredEmptyMatchIsNoOp(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.RegisterSubscription(Local, Subscriber{ID: 1, Key: ResourceKey{RID: NoRID, RName: "/a"}, Callback: func(Sample) {}}); err != nil {
		t.Fatalf("register subscription: %v", err)
	}

	s.DeclareResource(Remote, 7, ResourceKey{RID: NoRID, RName: "/a"})
	s.OnRemoteResourceDeclared(7, ResourceKey{RID: NoRID, RName: "/a"})
	if subs := s.remResLocSubMap[7]; len(subs) != 1 {
		t.Fatalf("index has %d entries before re-declare, want 1", len(subs))
	}

	// Re-declare the same remote id under a key that matches nothing.
	s.DeclareResource(Remote, 7, ResourceKey{RID: NoRID, RName: "/no/match"})
	s.OnRemoteResourceDeclared(7, ResourceKey{RID: NoRID, RName: "/no/match"})

	if subs := s.remResLocSubMap[7]; len(subs) != 1 {
		t.Fatalf("index has %d entries after empty-match re-declare, want 1 (unchanged)", len(subs))
	}
}

// TestOnRemoteResourceDeclaredQueryablesEmptyMatchIsNoOp is the queryable
// analogue of TestOnRemoteResourceDeclaredEmptyMatchIsNoOp.
func TestOnRemoteResourceDeclaredQueryablesEmptyMatchIsNoOp(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.RegisterQueryable(Queryable{ID: 1, Key: ResourceKey{RID: NoRID, RName: "/a"}, Kind: AllKinds}); err != nil {
		t.Fatalf("register queryable: %v", err)
	}

	s.DeclareResource(Remote, 7, ResourceKey{RID: NoRID, RName: "/a"})
	s.OnRemoteResourceDeclaredQueryables(7, ResourceKey{RID: NoRID, RName: "/a"})
	if qles := s.remResLocQleMap[7]; len(qles) != 1 {
		t.Fatalf("index has %d entries before re-declare, want 1", len(qles))
	}

	s.DeclareResource(Remote, 7, ResourceKey{RID: NoRID, RName: "/no/match"})
	s.OnRemoteResourceDeclaredQueryables(7, ResourceKey{RID: NoRID, RName: "/no/match"})

	if qles := s.remResLocQleMap[7]; len(qles) != 1 {
		t.Fatalf("index has %d entries after empty-match re-declare, want 1 (unchanged)", len(qles))
	}
}

// TestQueryLifecycle is scenario 5: two local queryables match a query's
// key; both callbacks run in registration order, then a terminal UNIT is
// written.
func TestQueryLifecycle(t *testing.T) {
	s, l := newTestSession(t)

	var order []int
	mk := func(id int) Queryable {
		return Queryable{
			ID:   uint64(id),
			Key:  ResourceKey{RID: NoRID, RName: "/q/*"},
			Kind: AllKinds,
			Callback: func(QueryMsg) ([]byte, bool) {
				order = append(order, id)
				return nil, false
			},
		}
	}
	if err := s.RegisterQueryable(mk(1)); err != nil {
		t.Fatalf("register 1: %v", err)
	}
	if err := s.RegisterQueryable(mk(2)); err != nil {
		t.Fatalf("register 2: %v", err)
	}

	if err := s.TriggerQueryables(ResourceKey{RID: NoRID, RName: "/q/1"}, "", 55, AllKinds); err != nil {
		t.Fatalf("trigger queryables: %v", err)
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("callback order = %v, want [1 2]", order)
	}

	frames := l.allFrames()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one terminal UNIT frame, got %d", len(frames))
	}
}

// TestKindMaskFiltersQueryables verifies only queryables overlapping the
// query's target-kind mask are invoked, unless the query sets AllKinds.
func TestKindMaskFiltersQueryables(t *testing.T) {
	s, _ := newTestSession(t)
	var invoked []uint32
	record := func(kind uint32) QueryCallback {
		return func(QueryMsg) ([]byte, bool) {
			invoked = append(invoked, kind)
			return nil, false
		}
	}
	if err := s.RegisterQueryable(Queryable{ID: 1, Key: ResourceKey{RID: NoRID, RName: "/q"}, Kind: Storage, Callback: record(Storage)}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterQueryable(Queryable{ID: 2, Key: ResourceKey{RID: NoRID, RName: "/q"}, Kind: Eval, Callback: record(Eval)}); err != nil {
		t.Fatal(err)
	}

	if err := s.TriggerQueryables(ResourceKey{RID: NoRID, RName: "/q"}, "", 1, Storage); err != nil {
		t.Fatal(err)
	}
	if len(invoked) != 1 || invoked[0] != Storage {
		t.Fatalf("invoked = %v, want only Storage", invoked)
	}
}
