package http3

import (
	"bytes"

	"github.com/quic-go/qpack"
)

// HeaderField is one (name, value) header pair, re-exported in our own
// vocabulary so callers never need to import quic-go/qpack directly.
type HeaderField struct {
	Name  string
	Value string
}

// qpackEncoderAdapter owns the encoder's outbound (and, if ever bound, a
// peer-ack) stream, and the qpack.Encoder used to render header blocks.
// QPACK compression internals are an external collaborator; this adapter
// only does stream bookkeeping plus driving the third-party codec in its
// static-table/literal-only mode — the dynamic table is never grown.
type qpackEncoderAdapter struct {
	sendStreamID *uint64
	recvStreamID *uint64
	outbound     bytes.Buffer

	maxCapacity       uint64
	maxBlockedStreams uint64
}

func newQPACKEncoderAdapter() *qpackEncoderAdapter {
	return &qpackEncoderAdapter{}
}

func (e *qpackEncoderAdapter) addSendStream(t Transport) error {
	id, err := t.StreamCreate(UniDi)
	if err != nil {
		return err
	}
	e.sendStreamID = &id
	e.outbound.WriteByte(byte(streamTypeQPACKEncoder))
	return nil
}

func (e *qpackEncoderAdapter) addRecvStream(streamID uint64) error {
	if e.recvStreamID != nil {
		return ErrWrongStreamCount
	}
	id := streamID
	e.recvStreamID = &id
	return nil
}

func (e *qpackEncoderAdapter) hasRecvStream() bool { return e.recvStreamID != nil }

// routeInbound reports whether streamID is this adapter's recv stream,
// consuming (and discarding) whatever bytes are available: in
// static-table mode the peer's decoder never has anything meaningful to
// tell us (no Section Acknowledgment is ever outstanding), so inbound
// bytes are drained without interpretation.
func (e *qpackEncoderAdapter) routeInbound(t Transport, streamID uint64) (matched bool, err error) {
	if e.recvStreamID == nil || *e.recvStreamID != streamID {
		return false, nil
	}
	buf := make([]byte, 4096)
	for {
		n, fin, rerr := t.StreamRecv(streamID, buf)
		if rerr != nil {
			return true, rerr
		}
		if n == 0 {
			if fin {
				return true, ErrClosedCriticalStream
			}
			return true, nil
		}
	}
}

func (e *qpackEncoderAdapter) drain(t Transport) error {
	if e.sendStreamID == nil || e.outbound.Len() == 0 {
		return nil
	}
	b := e.outbound.Bytes()
	n, err := t.StreamSend(*e.sendStreamID, b)
	if err != nil {
		return err
	}
	remaining := append([]byte(nil), b[n:]...)
	e.outbound.Reset()
	e.outbound.Write(remaining)
	return nil
}

func (e *qpackEncoderAdapter) setMaxCapacity(v uint64)       { e.maxCapacity = v }
func (e *qpackEncoderAdapter) setMaxBlockedStreams(v uint64) { e.maxBlockedStreams = v }

// encodeHeaderBlock renders pseudo+regular headers into a QPACK header
// block suitable for a HEADERS frame payload.
func encodeHeaderBlock(fields []HeaderField) []byte {
	var buf bytes.Buffer
	enc := qpack.NewEncoder(&buf)
	for _, f := range fields {
		enc.WriteField(qpack.HeaderField{Name: f.Name, Value: f.Value})
	}
	enc.Close()
	return buf.Bytes()
}

// qpackDecoderAdapter owns the decoder's outbound (ack) stream and the
// peer's encoder stream, and decodes complete header blocks. Because the
// encoder side never grows a dynamic table, DecodeFull never blocks —
// routeInbound therefore never produces unblocked stream ids, but the
// method still returns a slice (always empty today) to keep the call
// shape stable so a future dynamic-table encoder could be swapped in
// without changing the connection's call sites.
type qpackDecoderAdapter struct {
	sendStreamID *uint64
	recvStreamID *uint64
	outbound     bytes.Buffer

	maxTableSize     uint32
	maxBlockedStreams uint16
}

func newQPACKDecoderAdapter(maxTableSize uint32, maxBlockedStreams uint16) *qpackDecoderAdapter {
	return &qpackDecoderAdapter{maxTableSize: maxTableSize, maxBlockedStreams: maxBlockedStreams}
}

func (d *qpackDecoderAdapter) addSendStream(t Transport) error {
	id, err := t.StreamCreate(UniDi)
	if err != nil {
		return err
	}
	d.sendStreamID = &id
	d.outbound.WriteByte(byte(streamTypeQPACKDecoder))
	return nil
}

func (d *qpackDecoderAdapter) addRecvStream(streamID uint64) error {
	if d.recvStreamID != nil {
		return ErrWrongStreamCount
	}
	id := streamID
	d.recvStreamID = &id
	return nil
}

func (d *qpackDecoderAdapter) hasRecvStream() bool { return d.recvStreamID != nil }

// isRecvStream reports whether streamID is this adapter's bound peer
// encoder stream.
func (d *qpackDecoderAdapter) isRecvStream(streamID uint64) bool {
	return d.recvStreamID != nil && *d.recvStreamID == streamID
}

// routeInbound drains bytes from the peer's encoder stream (dynamic-table
// insert instructions, never emitted by our peer's literal-only encoder
// in this profile) and reports which request streams, if any, became
// unblocked as a result.
func (d *qpackDecoderAdapter) routeInbound(t Transport, streamID uint64) (unblocked []uint64, err error) {
	buf := make([]byte, 4096)
	for {
		n, fin, rerr := t.StreamRecv(streamID, buf)
		if rerr != nil {
			return nil, rerr
		}
		if n == 0 {
			if fin {
				return nil, ErrClosedCriticalStream
			}
			return nil, nil
		}
	}
}

func (d *qpackDecoderAdapter) drain(t Transport) error {
	if d.sendStreamID == nil || d.outbound.Len() == 0 {
		return nil
	}
	b := d.outbound.Bytes()
	n, err := t.StreamSend(*d.sendStreamID, b)
	if err != nil {
		return err
	}
	remaining := append([]byte(nil), b[n:]...)
	d.outbound.Reset()
	d.outbound.Write(remaining)
	return nil
}

// decodeFull decodes a complete header block into header fields. Errors
// mean the block was malformed or, in a future dynamic-table-capable
// profile, that it referenced table entries our encoder peer never sent.
func decodeFull(headerBlock []byte) ([]HeaderField, error) {
	decoder := qpack.NewDecoder(func(qpack.HeaderField) {})
	fields, err := decoder.DecodeFull(headerBlock)
	if err != nil {
		return nil, err
	}
	out := make([]HeaderField, len(fields))
	for i, hf := range fields {
		out[i] = HeaderField{Name: hf.Name, Value: hf.Value}
	}
	return out, nil
}
