// Package publisher implements the PubSub publish side: connection
// lifecycle, subscribe handling, the publish hot path, and gap-free
// recovery handoff, per spec §4.7/§4.9.
package publisher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veldra/mdcore/pkg/messagelog"
	"github.com/veldra/mdcore/pkg/sequence"
	"github.com/veldra/mdcore/pkg/wire"
)

// Options configures a Publisher.
type Options struct {
	ID   uint32
	Name string

	Network       string // "unix" or "tcp"
	ListenAddress string

	Log         *messagelog.Log
	SeqStore    sequence.Store
	WorkerCount int

	Logger *log.Logger
}

// TopicStats reports per-topic delivery counts. Supplemented from
// pubsub/SimplePublisherV2.cpp's per-topic subscriber-count diagnostics.
type TopicStats struct {
	Topic           uint32
	MessagesSent    uint64
	SubscriberCount int
}

// Stats is Publisher.Stats()'s return value.
type Stats struct {
	SessionCount int
	GlobalSeq    uint64
	Topics       []TopicStats
}

// Publisher accepts subscriber connections on a single listener, serializes
// published payloads with sequence metadata, appends them to a MessageLog,
// broadcasts to eligible sessions, and coordinates recovery via a pool of
// RecoveryWorkers.
type Publisher struct {
	id   uint32
	name string

	network string
	address string

	log      *log.Logger
	msgLog   *messagelog.Log
	seqStore sequence.Store
	seqMu    sync.Mutex
	seqRec   *sequence.Record

	sessionsMu sync.Mutex
	sessions   map[uint32]*session
	nextAnonID uint32

	workers    []*recoveryWorker
	nextWorker uint32

	perTopicSent map[uint32]*uint64

	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
}

// New constructs a Publisher. Start must be called to begin accepting
// connections.
func New(opts Options) (*Publisher, error) {
	if opts.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be >= 1")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	rec, err := opts.SeqStore.Load(opts.Name)
	if err != nil {
		rec = sequence.NewRecord(opts.Name, uint64(opts.ID))
	}

	p := &Publisher{
		id:       opts.ID,
		name:     opts.Name,
		network:  opts.Network,
		address:  opts.ListenAddress,
		log:      logger,
		msgLog:   opts.Log,
		seqStore: opts.SeqStore,
		seqRec:   rec,
		sessions: make(map[uint32]*session),
		done:     make(chan struct{}),
		perTopicSent: map[uint32]*uint64{
			wire.Topic1: new(uint64),
			wire.Topic2: new(uint64),
			wire.Misc:   new(uint64),
		},
	}

	for i := 0; i < opts.WorkerCount; i++ {
		p.workers = append(p.workers, newRecoveryWorker(p))
	}

	return p, nil
}

// Start opens the listener and begins accepting connections on a
// background goroutine; each worker's loop is started too.
func (p *Publisher) Start() error {
	l, err := net.Listen(p.network, p.address)
	if err != nil {
		return fmt.Errorf("listen on %s:%s: %w", p.network, p.address, err)
	}

	p.listener = l

	for _, w := range p.workers {
		w.start()
	}

	p.wg.Add(1)

	go p.acceptLoop()

	return nil
}

// Stop closes the listener, signals every worker and session to shut down,
// and waits for the accept loop and workers to exit.
func (p *Publisher) Stop() error {
	close(p.done)

	var closeErr error
	if p.listener != nil {
		closeErr = p.listener.Close()
	}

	p.sessionsMu.Lock()
	for _, s := range p.sessions {
		s.markClosed()
		_ = s.conn.Close()
	}
	p.sessionsMu.Unlock()

	for _, w := range p.workers {
		w.stop()
	}

	p.wg.Wait()

	_ = p.seqStore.Flush()

	return closeErr
}

func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.done:
				return
			default:
				p.log.Printf("accept error: %v", err)
				return
			}
		}

		p.wg.Add(1)

		go p.handleConn(conn)
	}
}

func (p *Publisher) handleConn(conn net.Conn) {
	defer p.wg.Done()
	defer conn.Close()

	sess := newSession(conn)

	id := atomic.AddUint32(&p.nextAnonID, 1)

	p.sessionsMu.Lock()
	p.sessions[id] = sess
	p.sessionsMu.Unlock()

	defer func() {
		p.sessionsMu.Lock()
		delete(p.sessions, id)
		p.sessionsMu.Unlock()
		sess.markClosed()
	}()

	for {
		frame, err := wire.Decode(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Printf("session %d: decode error: %v", id, err)
			}

			return
		}

		switch f := frame.(type) {
		case wire.SubscribeRequest:
			p.handleSubscribe(sess, f)
		case wire.RecoveryRequest:
			p.handleRecoveryRequest(sess, f)
		default:
			p.log.Printf("session %d: unexpected frame %T on publisher side", id, f)
		}
	}
}

func (p *Publisher) handleSubscribe(sess *session, req wire.SubscribeRequest) {
	sess.setSubscribed(req.ClientID, req.TopicMask)

	resp := wire.SubscribeResponse{
		Result:         0,
		ApprovedTopics: req.TopicMask,
		CurrentSeq:     uint32(p.seqRec.GlobalCounter()),
	}

	if err := sess.writeFrame(resp); err != nil {
		p.log.Printf("session %d: write subscribe-response: %v", req.ClientID, err)
	}
}

// Publish is the hot path of spec §4.7.3: it increments counters, appends
// to the MessageLog, persists the sequence record, and fans out to every
// eligible session.
//
// The increment and the session fan-out run under one seqMu critical
// section, per spec §4.7.4: the target a concurrent recovery captures (see
// handleRecoveryRequest) is either strictly before this message (so the
// fan-out below queues it into the session's pending buffer) or already
// includes it (so the fan-out delivers it live) — never both, which would
// double-deliver it.
func (p *Publisher) Publish(topic uint32, payload []byte, nowNs int64) (uint32, error) {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()

	p.seqRec.Increment(topicIndex(topic), nowNs)
	globalSeq := uint32(p.seqRec.GlobalCounter())
	topicSeq := uint32(p.seqRec.TopicCounter(topicIndex(topic)))

	msg := wire.TopicMessage{
		Topic:     topic,
		GlobalSeq: globalSeq,
		TopicSeq:  topicSeq,
		Timestamp: nowNs,
		Data:      payload,
	}

	var encoded bytes.Buffer
	if err := wire.Encode(&encoded, msg); err != nil {
		return 0, fmt.Errorf("encode topic message: %w", err)
	}

	if _, err := p.msgLog.Append(encoded.Bytes(), nowNs); err != nil {
		// Best-effort durability: log and continue so live broadcast is not
		// blocked, per spec §4.7.3 step 3.
		p.log.Printf("message log append failed for seq %d: %v", globalSeq, err)
	}

	if err := p.seqStore.Save(p.seqRec); err != nil {
		p.log.Printf("sequence record save failed for seq %d: %v", globalSeq, err)
	}

	if counter, ok := p.perTopicSent[topic]; ok {
		atomic.AddUint64(counter, 1)
	}

	frame := encoded.Bytes()

	p.sessionsMu.Lock()
	sessions := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.sessionsMu.Unlock()

	for _, s := range sessions {
		if s.wantsTopic(topic) {
			s.deliverOrQueue(frame)
		}
	}

	return globalSeq, nil
}

func (p *Publisher) clockNs() int64 {
	return time.Now().UnixNano()
}

func topicIndex(topic uint32) int {
	switch topic {
	case wire.Topic1:
		return 1
	case wire.Topic2:
		return 2
	default:
		return 0
	}
}

// Addr returns the listener's bound address. Valid only after Start.
func (p *Publisher) Addr() net.Addr {
	return p.listener.Addr()
}

// Stats reports overall and per-topic delivery counts.
func (p *Publisher) Stats() Stats {
	p.sessionsMu.Lock()
	sessionCount := len(p.sessions)
	p.sessionsMu.Unlock()

	p.seqMu.Lock()
	global := p.seqRec.GlobalCounter()
	p.seqMu.Unlock()

	topics := make([]TopicStats, 0, len(p.perTopicSent))

	for _, topic := range []uint32{wire.Topic1, wire.Topic2, wire.Misc} {
		subs := 0

		p.sessionsMu.Lock()
		for _, s := range p.sessions {
			if s.wantsTopic(topic) {
				subs++
			}
		}
		p.sessionsMu.Unlock()

		topics = append(topics, TopicStats{
			Topic:           topic,
			MessagesSent:    atomic.LoadUint64(p.perTopicSent[topic]),
			SubscriberCount: subs,
		})
	}

	return Stats{SessionCount: sessionCount, GlobalSeq: global, Topics: topics}
}
