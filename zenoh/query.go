package zenoh

import (
	"context"
	"fmt"

	"github.com/gabrik/zenoh-pico-go/internal/session"
	"github.com/gabrik/zenoh-pico-go/internal/wire"
)

// replyBufSize bounds how many replies a pending query buffers before
// routeReply starts dropping them; a queryable answering faster than the
// caller drains Query's result is the only way to hit this.
const replyBufSize = 16

// pendingQuery correlates inbound Reply/Unit transport traffic back to
// one in-flight Query call.
type pendingQuery struct {
	replies chan Reply
	done    chan struct{}
}

// Query issues a QUERY for keyexpr/predicate with the given target kind
// and waits for replies until the terminal UNIT arrives or ctx is done.
// On ctx cancellation, replies collected so far are returned alongside
// ctx.Err().
func (s *Session) Query(ctx context.Context, keyexpr, predicate string, targetKind uint32) ([]Reply, error) {
	qid := s.qIDs.Next()
	pq := &pendingQuery{
		replies: make(chan Reply, replyBufSize),
		done:    make(chan struct{}),
	}

	s.pendingMu.Lock()
	s.pending[qid] = pq
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, qid)
		s.pendingMu.Unlock()
	}()

	msg := wire.Query{
		Key:        wire.ResKey{RID: session.NoRID, RName: keyexpr},
		Predicate:  predicate,
		QID:        qid,
		TargetKind: targetKind,
	}
	if err := s.core.SendZenohMessage(msg, Reliable, Block); err != nil {
		return nil, fmt.Errorf("zenoh: query %q: %w", keyexpr, err)
	}

	var replies []Reply
	for {
		select {
		case <-ctx.Done():
			return replies, ctx.Err()
		case r := <-pq.replies:
			replies = append(replies, r)
		case <-pq.done:
			return append(replies, drainReplies(pq.replies)...), nil
		}
	}
}

// drainReplies collects any replies already buffered on ch without
// blocking, for the race where Reply sends land concurrently with the
// terminal UNIT's done close.
func drainReplies(ch chan Reply) []Reply {
	var out []Reply
	for {
		select {
		case r := <-ch:
			out = append(out, r)
		default:
			return out
		}
	}
}
