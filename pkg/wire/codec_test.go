package wire

import (
	"bytes"
	"testing"
)

func Test_Encode_Then_Decode_Round_Trips_TopicMessage(t *testing.T) {
	var buf bytes.Buffer

	want := TopicMessage{Topic: Topic1, GlobalSeq: 3, TopicSeq: 2, Timestamp: 555, Data: []byte("payload")}

	if err := Encode(&buf, want); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	tm, ok := got.(TopicMessage)
	if !ok {
		t.Fatalf("Decode returned %T, want TopicMessage", got)
	}

	if tm.Topic != want.Topic || tm.GlobalSeq != want.GlobalSeq || tm.TopicSeq != want.TopicSeq || tm.Timestamp != want.Timestamp {
		t.Fatalf("decoded=%+v, want=%+v", tm, want)
	}

	if string(tm.Data) != string(want.Data) {
		t.Fatalf("Data=%q, want %q", tm.Data, want.Data)
	}
}

func Test_Encode_Then_Decode_Round_Trips_SubscribeRequest(t *testing.T) {
	var buf bytes.Buffer

	want := SubscribeRequest{ClientID: 1, TopicMask: AllTopics, LastSeq: 9, ClientName: "feed-consumer"}

	if err := Encode(&buf, want); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	sr, ok := got.(SubscribeRequest)
	if !ok {
		t.Fatalf("Decode returned %T, want SubscribeRequest", got)
	}

	if sr != want {
		t.Fatalf("decoded=%+v, want=%+v", sr, want)
	}
}

func Test_Decode_Discards_Unknown_Magic_And_Resyncs(t *testing.T) {
	var buf bytes.Buffer

	buf.WriteString("ZZZZ") // unknown magic, should be discarded

	want := RecoveryComplete{TotalSent: 42, Timestamp: 777}
	if err := Encode(&buf, want); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	rc, ok := got.(RecoveryComplete)
	if !ok {
		t.Fatalf("Decode returned %T, want RecoveryComplete", got)
	}

	if rc != want {
		t.Fatalf("decoded=%+v, want=%+v", rc, want)
	}
}

func Test_Encode_Then_Decode_Round_Trips_RecoveryResponse(t *testing.T) {
	var buf bytes.Buffer

	want := RecoveryResponse{Result: 0, StartSeq: 5, EndSeq: 10, Total: 6}

	if err := Encode(&buf, want); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	rr, ok := got.(RecoveryResponse)
	if !ok {
		t.Fatalf("Decode returned %T, want RecoveryResponse", got)
	}

	if rr != want {
		t.Fatalf("decoded=%+v, want=%+v", rr, want)
	}
}
