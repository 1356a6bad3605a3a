package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/veldra/mdcore/pkg/errs"
)

// order is the wire's integer byte order. spec.md calls for host-endian
// fixed-width integers; binary.NativeEndian resolves to whatever the
// running machine's ByteOrder is, matching a struct laid directly over
// memory the way the original implementation did.
var order = binary.NativeEndian

// Encode writes f's magic and fixed-size body to w.
func Encode(w io.Writer, f Frame) error {
	switch v := f.(type) {
	case TopicMessage:
		return encodeTopicMessage(w, v)
	case SubscribeRequest:
		return encodeSubscribeRequest(w, v)
	case SubscribeResponse:
		return encodeSubscribeResponse(w, v)
	case RecoveryRequest:
		return encodeRecoveryRequest(w, v)
	case RecoveryResponse:
		return encodeRecoveryResponse(w, v)
	case RecoveryComplete:
		return encodeRecoveryComplete(w, v)
	default:
		return fmt.Errorf("unknown frame type %T: %w", f, errs.InvalidParameter)
	}
}

func writeMagicAndBody(w io.Writer, magic string, body []byte) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}

	_, err := w.Write(body)

	return err
}

func encodeTopicMessage(w io.Writer, v TopicMessage) error {
	body := make([]byte, 24+len(v.Data))
	order.PutUint32(body[0:], v.Topic)
	order.PutUint32(body[4:], v.GlobalSeq)
	order.PutUint32(body[8:], v.TopicSeq)
	order.PutUint64(body[12:], uint64(v.Timestamp))
	order.PutUint32(body[20:], uint32(len(v.Data)))
	copy(body[24:], v.Data)

	return writeMagicAndBody(w, magicTopicMessage, body)
}

func encodeSubscribeRequest(w io.Writer, v SubscribeRequest) error {
	body := make([]byte, 12+clientNameLength)
	order.PutUint32(body[0:], v.ClientID)
	order.PutUint32(body[4:], v.TopicMask)
	order.PutUint32(body[8:], v.LastSeq)

	n := copy(body[12:12+clientNameLength], v.ClientName)
	for i := 12 + n; i < len(body); i++ {
		body[i] = 0
	}

	return writeMagicAndBody(w, magicSubscribeRequest, body)
}

func encodeSubscribeResponse(w io.Writer, v SubscribeResponse) error {
	body := make([]byte, 12)
	order.PutUint32(body[0:], v.Result)
	order.PutUint32(body[4:], v.ApprovedTopics)
	order.PutUint32(body[8:], v.CurrentSeq)

	return writeMagicAndBody(w, magicSubscribeResponse, body)
}

func encodeRecoveryRequest(w io.Writer, v RecoveryRequest) error {
	body := make([]byte, 12)
	order.PutUint32(body[0:], v.ClientID)
	order.PutUint32(body[4:], v.TopicMask)
	order.PutUint32(body[8:], v.LastSeq)

	return writeMagicAndBody(w, magicRecoveryRequest, body)
}

func encodeRecoveryResponse(w io.Writer, v RecoveryResponse) error {
	body := make([]byte, 16)
	order.PutUint32(body[0:], v.Result)
	order.PutUint32(body[4:], v.StartSeq)
	order.PutUint32(body[8:], v.EndSeq)
	order.PutUint32(body[12:], v.Total)

	return writeMagicAndBody(w, magicRecoveryResponse, body)
}

func encodeRecoveryComplete(w io.Writer, v RecoveryComplete) error {
	body := make([]byte, 12)
	order.PutUint32(body[0:], v.TotalSent)
	order.PutUint64(body[4:], uint64(v.Timestamp))

	return writeMagicAndBody(w, magicRecoveryComplete, body)
}

// Decode reads the next frame from r. Unknown magics are discarded 4 bytes
// at a time and parsing continues — defensive resync, per spec §6.1/§4.7.1.
func Decode(r io.Reader) (Frame, error) {
	for {
		magic := make([]byte, 4)

		if _, err := io.ReadFull(r, magic); err != nil {
			return nil, err
		}

		switch string(magic) {
		case magicTopicMessage:
			return decodeTopicMessage(r)
		case magicSubscribeRequest:
			return decodeSubscribeRequest(r)
		case magicSubscribeResponse:
			return decodeSubscribeResponse(r)
		case magicRecoveryRequest:
			return decodeRecoveryRequest(r)
		case magicRecoveryResponse:
			return decodeRecoveryResponse(r)
		case magicRecoveryComplete:
			return decodeRecoveryComplete(r)
		default:
			continue // discard this 4-byte window and resync
		}
	}
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

func decodeTopicMessage(r io.Reader) (Frame, error) {
	head, err := readFull(r, 24)
	if err != nil {
		return nil, err
	}

	dataSize := order.Uint32(head[20:])

	data, err := readFull(r, int(dataSize))
	if err != nil {
		return nil, err
	}

	return TopicMessage{
		Topic:     order.Uint32(head[0:]),
		GlobalSeq: order.Uint32(head[4:]),
		TopicSeq:  order.Uint32(head[8:]),
		Timestamp: int64(order.Uint64(head[12:])),
		Data:      data,
	}, nil
}

func decodeSubscribeRequest(r io.Reader) (Frame, error) {
	body, err := readFull(r, 12+clientNameLength)
	if err != nil {
		return nil, err
	}

	return SubscribeRequest{
		ClientID:   order.Uint32(body[0:]),
		TopicMask:  order.Uint32(body[4:]),
		LastSeq:    order.Uint32(body[8:]),
		ClientName: trimNUL(body[12 : 12+clientNameLength]),
	}, nil
}

func decodeSubscribeResponse(r io.Reader) (Frame, error) {
	body, err := readFull(r, 12)
	if err != nil {
		return nil, err
	}

	return SubscribeResponse{
		Result:         order.Uint32(body[0:]),
		ApprovedTopics: order.Uint32(body[4:]),
		CurrentSeq:     order.Uint32(body[8:]),
	}, nil
}

func decodeRecoveryRequest(r io.Reader) (Frame, error) {
	body, err := readFull(r, 12)
	if err != nil {
		return nil, err
	}

	return RecoveryRequest{
		ClientID:  order.Uint32(body[0:]),
		TopicMask: order.Uint32(body[4:]),
		LastSeq:   order.Uint32(body[8:]),
	}, nil
}

func decodeRecoveryResponse(r io.Reader) (Frame, error) {
	body, err := readFull(r, 16)
	if err != nil {
		return nil, err
	}

	return RecoveryResponse{
		Result:   order.Uint32(body[0:]),
		StartSeq: order.Uint32(body[4:]),
		EndSeq:   order.Uint32(body[8:]),
		Total:    order.Uint32(body[12:]),
	}, nil
}

func decodeRecoveryComplete(r io.Reader) (Frame, error) {
	body, err := readFull(r, 12)
	if err != nil {
		return nil, err
	}

	return RecoveryComplete{
		TotalSent: order.Uint32(body[0:]),
		Timestamp: int64(order.Uint64(body[4:])),
	}, nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}
