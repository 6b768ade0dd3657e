package session

import (
	"errors"
	"sync"

	"github.com/gabrik/zenoh-pico-go/internal/link"
)

// recordingLink is a test double satisfying link.Link: it captures every
// Write as a discrete frame for assertions and optionally fails writes.
type recordingLink struct {
	mu       sync.Mutex
	streamed bool
	frames   [][]byte
	failNext int // number of upcoming writes to fail before succeeding
}

var _ link.Link = (*recordingLink)(nil)

func newRecordingLink(streamed bool) *recordingLink {
	return &recordingLink{streamed: streamed}
}

func (l *recordingLink) IsStreamed() bool { return l.streamed }

func (l *recordingLink) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext > 0 {
		l.failNext--
		return 0, errors.New("simulated link write failure")
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	l.frames = append(l.frames, cp)
	return len(b), nil
}

func (l *recordingLink) Read(b []byte) (int, error) { return 0, errors.New("not implemented") }
func (l *recordingLink) Close() error               { return nil }

func (l *recordingLink) allFrames() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.frames))
	copy(out, l.frames)
	return out
}

func (l *recordingLink) setFailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
}
