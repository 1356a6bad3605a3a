// Package subscriber implements the PubSub subscribe side: a single
// outbound connection driving the state machine of spec §4.8 — connect,
// subscribe, per-topic gap detection, recovery handoff, and reconnect
// with bounded-delay retry.
package subscriber

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/veldra/mdcore/pkg/wire"
)

// State is the subscriber's position in the connection lifecycle of
// spec §4.8's diagram.
type State int

const (
	StateOffline State = iota
	StateConnected
	StateOnline
	StateRecoveryNeeded
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "OFFLINE"
	case StateConnected:
		return "CONNECTED"
	case StateOnline:
		return "ONLINE"
	case StateRecoveryNeeded:
		return "RECOVERY_NEEDED"
	case StateRecovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// Message is one accepted, gap-free delivery handed to the user callback.
type Message struct {
	Topic     uint32
	TopicSeq  uint32
	GlobalSeq uint32
	Timestamp int64
	Data      []byte
}

// Callback receives accepted messages in strictly increasing, gap-free,
// duplicate-free per-topic sequence, per spec §4.8's invariant.
type Callback func(Message)

// Options configures a Subscriber.
type Options struct {
	ClientID   uint32
	ClientName string

	Network string // "unix" or "tcp"
	Address string

	TopicMask uint32

	// ReconnectDelay bounds the retry interval after EOF/error. Defaults to
	// one second.
	ReconnectDelay time.Duration

	Logger    *log.Logger
	OnMessage Callback
}

// Subscriber drives one outbound connection and the gap-detection state
// machine against it, per spec §4.8.
type Subscriber struct {
	opts Options
	log  *log.Logger

	mu          sync.Mutex
	state       State
	conn        net.Conn
	globalSeq   uint32
	perTopicSeq map[uint32]uint32

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Subscriber. Start begins the connect/read loop.
func New(opts Options) *Subscriber {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Subscriber{
		opts:        opts,
		log:         logger,
		state:       StateOffline,
		perTopicSeq: make(map[uint32]uint32),
		done:        make(chan struct{}),
	}
}

// Start begins the background connect/subscribe/read loop.
func (s *Subscriber) Start() {
	s.wg.Add(1)

	go s.loop()
}

// Stop signals the loop to exit and waits for it to return.
func (s *Subscriber) Stop() {
	close(s.done)

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// State reports the subscriber's current lifecycle position.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Subscriber) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Subscriber) loop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.connectAndServe(); err != nil {
			s.log.Printf("subscriber %d: %v", s.opts.ClientID, err)
		}

		select {
		case <-s.done:
			return
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
}

// connectAndServe dials, subscribes, and reads frames until disconnect.
// Reconnect is handled by the caller loop, per spec §4.8's "retry
// indefinitely" rule.
func (s *Subscriber) connectAndServe() error {
	conn, err := net.Dial(s.opts.Network, s.opts.Address)
	if err != nil {
		return err
	}

	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	lastSeq := s.globalSeq
	s.mu.Unlock()

	req := wire.SubscribeRequest{
		ClientID:   s.opts.ClientID,
		TopicMask:  s.opts.TopicMask,
		LastSeq:    lastSeq,
		ClientName: s.opts.ClientName,
	}

	if err := wire.Encode(conn, req); err != nil {
		return err
	}

	frame, err := wire.Decode(conn)
	if err != nil {
		return err
	}

	resp, ok := frame.(wire.SubscribeResponse)
	if !ok {
		return errors.New("expected subscribe-response, got a different frame")
	}

	if resp.Result != 0 {
		return errors.New("subscribe rejected by publisher")
	}

	s.setState(StateOnline)

	for {
		frame, err := wire.Decode(conn)
		if err != nil {
			s.mu.Lock()
			s.conn = nil
			s.state = StateOffline
			s.mu.Unlock()

			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		switch f := frame.(type) {
		case wire.TopicMessage:
			s.handleTopicMessage(f)
		case wire.RecoveryResponse:
			s.handleRecoveryResponse(f)
		case wire.RecoveryComplete:
			s.setState(StateOnline)
		default:
			s.log.Printf("subscriber %d: unexpected frame %T on subscriber side", s.opts.ClientID, f)
		}
	}
}

// handleTopicMessage implements the gap-detection rule of spec §4.8:
// accept exactly the next per-topic sequence, drop duplicates silently,
// and request recovery on a detected gap.
func (s *Subscriber) handleTopicMessage(tm wire.TopicMessage) {
	s.mu.Lock()

	current := s.perTopicSeq[tm.Topic]

	switch {
	case tm.TopicSeq == current+1:
		s.perTopicSeq[tm.Topic] = tm.TopicSeq
		if tm.GlobalSeq > s.globalSeq {
			s.globalSeq = tm.GlobalSeq
		}

		cb := s.opts.OnMessage

		s.mu.Unlock()

		if cb != nil {
			cb(Message{
				Topic:     tm.Topic,
				TopicSeq:  tm.TopicSeq,
				GlobalSeq: tm.GlobalSeq,
				Timestamp: tm.Timestamp,
				Data:      tm.Data,
			})
		}

		return

	case tm.TopicSeq <= current:
		// Duplicate: drop silently, per spec §4.8.
		s.mu.Unlock()

		return

	default:
		// Gap: request recovery from the last accepted global sequence.
		s.state = StateRecoveryNeeded
		lastSeq := s.globalSeq
		conn := s.conn

		s.mu.Unlock()

		req := wire.RecoveryRequest{
			ClientID:  s.opts.ClientID,
			TopicMask: s.opts.TopicMask,
			LastSeq:   lastSeq,
		}

		if conn != nil {
			if err := wire.Encode(conn, req); err != nil {
				s.log.Printf("subscriber %d: send recovery-request: %v", s.opts.ClientID, err)
				return
			}
		}

		s.setState(StateRecovering)
	}
}

func (s *Subscriber) handleRecoveryResponse(resp wire.RecoveryResponse) {
	if resp.Result != 0 {
		s.log.Printf("subscriber %d: recovery rejected by publisher (result=%d)", s.opts.ClientID, resp.Result)

		return
	}

	s.setState(StateRecovering)
}
