// Package sequence implements SequenceStore: a durable mapping from
// publisher identity to its current per-topic sequence counters, with two
// interchangeable backends (flat file, Master-backed), per spec §3.5/§4.6.
package sequence

import "github.com/veldra/mdcore/pkg/binrecord"

// publisherNameLength matches the wire protocol's client_name width (spec
// §6.1's SUBS frame), so a publisher's own name and the names subscribers
// present share one width.
const publisherNameLength = 64

// RecordLayout is the shared PublisherSequenceRecord layout: publisher
// identity, per-topic counters, and a global counter, fixed at the 148-byte
// size spec §6.2 gives the flat sequence file's record.
var RecordLayout = buildLayout()

func buildLayout() *binrecord.Layout {
	l := binrecord.NewLayout()

	fields := []binrecord.Field{
		{Name: "publisher_name", Kind: binrecord.Text, Length: publisherNameLength, Key: true},
		{Name: "publisher_id", Kind: binrecord.Binary, Length: 4},
		{Name: "publisher_date", Kind: binrecord.Text, Length: 8}, // yyyymmdd
		{Name: "topic1_counter", Kind: binrecord.Binary, Length: 8},
		{Name: "topic2_counter", Kind: binrecord.Binary, Length: 8},
		{Name: "misc_counter", Kind: binrecord.Binary, Length: 8},
		{Name: "global_counter", Kind: binrecord.Binary, Length: 8},
		{Name: "last_updated_ns", Kind: binrecord.Binary, Length: 8},
		// Pads the record to the fixed 148-byte size spec §6.2 specifies;
		// reserved for future per-record fields (e.g. additional topics).
		{Name: "reserved", Kind: binrecord.Binary, Length: 32},
	}

	for _, f := range fields {
		if err := l.AddField(f); err != nil {
			panic(err) // fixed, compile-time-known layout; a failure here is a programming error
		}
	}

	l.Finalize()

	return l
}

// Record is the in-memory view of a PublisherSequenceRecord: the decoded
// counters plus the raw binrecord.Record backing them (owned or, for a
// Master-backed in-place update, borrowed from a mapped slot).
type Record struct {
	bin *binrecord.Record
}

// NewRecord allocates a fresh, zero-filled PublisherSequenceRecord for name.
func NewRecord(publisherName string, publisherID uint64) *Record {
	r := &Record{bin: binrecord.New(RecordLayout)}

	_ = r.bin.SetText("publisher_name", publisherName)
	_ = r.bin.SetUint("publisher_id", publisherID)

	return r
}

// attachRecord wraps a borrowed buffer (e.g. a Master slot's payload) as a
// Record, for the Master-backed in-place update access path.
func attachRecord(buf []byte) (*Record, error) {
	bin, err := binrecord.Attach(RecordLayout, buf)
	if err != nil {
		return nil, err
	}

	return &Record{bin: bin}, nil
}

// Bytes returns the record's raw backing buffer.
func (r *Record) Bytes() []byte {
	return r.bin.Bytes()
}

func (r *Record) PublisherName() string {
	s, _ := r.bin.GetText("publisher_name")
	return s
}

func (r *Record) PublisherDate() string {
	s, _ := r.bin.GetText("publisher_date")
	return s
}

func (r *Record) SetPublisherDate(yyyymmdd string) {
	_ = r.bin.SetText("publisher_date", yyyymmdd)
}

func (r *Record) TopicCounter(topic int) uint64 {
	v, _ := r.bin.GetUint(topicField(topic))
	return v
}

func (r *Record) GlobalCounter() uint64 {
	v, _ := r.bin.GetUint("global_counter")
	return v
}

func (r *Record) LastUpdatedNs() int64 {
	v, _ := r.bin.GetUint("last_updated_ns")
	return int64(v)
}

// Increment bumps topic's counter and the global counter by one, and stamps
// last_updated_ns. Invariant (spec §3.5): exactly one topic counter and the
// global counter increment together on every publish.
func (r *Record) Increment(topic int, nowNs int64) {
	field := topicField(topic)

	cur, _ := r.bin.GetUint(field)
	_ = r.bin.SetUint(field, cur+1)

	global, _ := r.bin.GetUint("global_counter")
	_ = r.bin.SetUint("global_counter", global+1)

	_ = r.bin.SetUint("last_updated_ns", uint64(nowNs))
}

func topicField(topic int) string {
	switch topic {
	case 1:
		return "topic1_counter"
	case 2:
		return "topic2_counter"
	default:
		return "misc_counter"
	}
}
