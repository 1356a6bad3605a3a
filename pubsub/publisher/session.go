package publisher

import (
	"net"
	"sync"

	"github.com/veldra/mdcore/pkg/wire"
)

// State is a subscriber session's position in the connection lifecycle.
type State int

const (
	StateConnected State = iota
	StateOnline
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateOnline:
		return "ONLINE"
	case StateRecovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// session holds one subscriber connection's state, per spec §3.6/§4.7.1.
// Every write to conn (live fan-out from Publish, replies from the
// connection's goroutine, recovery replay) and every change to pending
// happens under mu.
type session struct {
	mu sync.Mutex

	conn     net.Conn
	clientID uint32

	topicMask uint32
	state     State

	// pending buffers frames published while the session is RECOVERING,
	// drained to conn in FIFO order once recovery completes.
	pending [][]byte

	closed bool
}

func newSession(conn net.Conn) *session {
	return &session{conn: conn, state: StateConnected}
}

func (s *session) setSubscribed(clientID, topicMask uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientID = clientID
	s.topicMask = topicMask
	s.state = StateOnline
}

func (s *session) wantsTopic(topic uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.topicMask&topic != 0
}

func (s *session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// deliverOrQueue implements the publish-path fan-out rule of spec §4.7.3
// step 5: write directly if ONLINE, queue if RECOVERING, drop otherwise.
func (s *session) deliverOrQueue(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateOnline:
		_, _ = s.conn.Write(frame) // best-effort; a write failure surfaces on the next read
	case StateRecovering:
		s.pending = append(s.pending, frame)
	default:
		// offline/connected-not-yet-subscribed: drop.
	}
}

// beginRecovery transitions the session to RECOVERING. Must be called
// before capturing the recovery target sequence, so that any publish
// committed after this point is queued rather than written directly.
func (s *session) beginRecovery() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateRecovering
}

// finishRecovery drains pending (in FIFO order, all sequences strictly
// greater than the recovery target by construction) and returns the
// session to ONLINE.
func (s *session) finishRecovery() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, frame := range s.pending {
		_, _ = s.conn.Write(frame)
	}

	s.pending = nil
	s.state = StateOnline
}

// writeRaw writes pre-encoded frame bytes directly to conn, guarded by mu
// so a recovery worker's replay writes never race a live broadcast write
// from Publish.
func (s *session) writeRaw(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Write(b)

	return err
}

func (s *session) writeFrame(f wire.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return wire.Encode(s.conn, f)
}

func (s *session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
