package http3

import (
	"github.com/michiboo/neqo/quicvarint"
)

// FrameType identifies an HTTP/3 frame on the wire.
type FrameType uint64

const (
	FrameTypeData          FrameType = 0x00
	FrameTypeHeaders       FrameType = 0x01
	FrameTypePriority      FrameType = 0x02
	FrameTypeCancelPush    FrameType = 0x03
	FrameTypeSettings      FrameType = 0x04
	FrameTypePushPromise   FrameType = 0x05
	FrameTypeGoaway        FrameType = 0x07
	FrameTypeMaxPushID     FrameType = 0x0d
	FrameTypeDuplicatePush FrameType = 0x0e
)

// SettingType identifies a SETTINGS parameter.
type SettingType uint64

const (
	SettingMaxTableSize     SettingType = 0x01
	SettingMaxHeaderListSize SettingType = 0x06
	SettingBlockedStreams   SettingType = 0x07
	SettingNumPlaceholders  SettingType = 0x09
)

// SettingEntry is one (id, value) pair from a SETTINGS frame.
type SettingEntry struct {
	ID    SettingType
	Value uint64
}

// Frame is any decoded HTTP/3 frame. Concrete payload accessors live on
// the typed structs below; Type always identifies which one a Frame is.
type Frame interface {
	Type() FrameType
	// encodePayload appends the wire encoding of the frame's payload
	// (without the type/length header) to b.
	encodePayload(b []byte) []byte
}

// DataFrame carries opaque body bytes, surfaced verbatim.
type DataFrame struct{ Payload []byte }

func (f *DataFrame) Type() FrameType { return FrameTypeData }
func (f *DataFrame) encodePayload(b []byte) []byte { return append(b, f.Payload...) }

// HeadersFrame carries a QPACK-encoded header block, surfaced verbatim.
type HeadersFrame struct{ HeaderBlock []byte }

func (f *HeadersFrame) Type() FrameType { return FrameTypeHeaders }
func (f *HeadersFrame) encodePayload(b []byte) []byte { return append(b, f.HeaderBlock...) }

// PriorityFrame is parsed but never acted on.
type PriorityFrame struct{ Raw []byte }

func (f *PriorityFrame) Type() FrameType { return FrameTypePriority }
func (f *PriorityFrame) encodePayload(b []byte) []byte { return append(b, f.Raw...) }

// CancelPushFrame carries a single push id.
type CancelPushFrame struct{ PushID uint64 }

func (f *CancelPushFrame) Type() FrameType { return FrameTypeCancelPush }
func (f *CancelPushFrame) encodePayload(b []byte) []byte { return quicvarint.Append(b, f.PushID) }

// SettingsFrame carries zero or more (id, value) pairs. Unknown ids are
// parsed (so the frame is well-formed) but otherwise ignored by the
// connection.
type SettingsFrame struct{ Settings []SettingEntry }

func (f *SettingsFrame) Type() FrameType { return FrameTypeSettings }
func (f *SettingsFrame) encodePayload(b []byte) []byte {
	for _, s := range f.Settings {
		b = quicvarint.Append(b, uint64(s.ID))
		b = quicvarint.Append(b, s.Value)
	}
	return b
}

// PushPromiseFrame carries a push id followed by a header block.
type PushPromiseFrame struct {
	PushID      uint64
	HeaderBlock []byte
}

func (f *PushPromiseFrame) Type() FrameType { return FrameTypePushPromise }
func (f *PushPromiseFrame) encodePayload(b []byte) []byte {
	b = quicvarint.Append(b, f.PushID)
	return append(b, f.HeaderBlock...)
}

// GoawayFrame carries the cutoff stream id at or above which no new
// requests are honored.
type GoawayFrame struct{ StreamID uint64 }

func (f *GoawayFrame) Type() FrameType { return FrameTypeGoaway }
func (f *GoawayFrame) encodePayload(b []byte) []byte { return quicvarint.Append(b, f.StreamID) }

// MaxPushIDFrame carries the highest push id the client will accept.
type MaxPushIDFrame struct{ PushID uint64 }

func (f *MaxPushIDFrame) Type() FrameType { return FrameTypeMaxPushID }
func (f *MaxPushIDFrame) encodePayload(b []byte) []byte { return quicvarint.Append(b, f.PushID) }

// DuplicatePushFrame carries a single push id.
type DuplicatePushFrame struct{ PushID uint64 }

func (f *DuplicatePushFrame) Type() FrameType { return FrameTypeDuplicatePush }
func (f *DuplicatePushFrame) encodePayload(b []byte) []byte { return quicvarint.Append(b, f.PushID) }

// EncodeFrame renders a complete frame (type, length, payload) to bytes.
func EncodeFrame(f Frame) []byte {
	payload := f.encodePayload(nil)
	b := quicvarint.Append(nil, uint64(f.Type()))
	b = quicvarint.Append(b, uint64(len(payload)))
	return append(b, payload...)
}

// frameReaderPhase tracks where an incremental FrameReader is in decoding
// one frame: reading the (type, length) header, or accumulating payload.
type frameReaderPhase int

const (
	phaseType frameReaderPhase = iota
	phaseLength
	phasePayload
	phaseDone
)

// FrameReader incrementally decodes a sequence of HTTP/3 frames from a
// byte stream that may arrive in arbitrarily small chunks.
// It owns its own accumulator — it never shares storage with the
// transport's read buffer.
type FrameReader struct {
	phase       frameReaderPhase
	typeDecoder quicvarint.Decoder
	frameType   FrameType
	lenDecoder  quicvarint.Decoder
	length      uint64
	payload     *quicvarint.FixedRunDecoder
	ready       Frame
}

// Done reports whether a complete frame is available via GetFrame.
func (r *FrameReader) Done() bool { return r.phase == phaseDone }

// AtBoundary reports whether the reader has not yet consumed any byte of
// a new frame — the only state in which a stream's FIN is legal.
func (r *FrameReader) AtBoundary() bool {
	return r.phase == phaseType && !r.typeDecoder.Started()
}

// CurrentType returns the frame type being parsed, once known, or the
// MalformedFrame sentinel (0xff) if the type byte hasn't arrived yet.
func (r *FrameReader) CurrentType() FrameType {
	if r.phase == phaseType {
		return unknownFrameTypeSentinel
	}
	return r.frameType
}

// MinRemaining reports how many bytes the reader needs before Consume can
// make further progress.
func (r *FrameReader) MinRemaining() int {
	switch r.phase {
	case phaseType:
		return r.typeDecoder.MinRemaining()
	case phaseLength:
		return r.lenDecoder.MinRemaining()
	case phasePayload:
		return r.payload.MinRemaining()
	default:
		return 0
	}
}

// Consume feeds bytes to the reader. It never consumes more than needed
// for the current phase; call it again with the remainder if any bytes
// are left unconsumed. Returns true once a frame becomes available.
func (r *FrameReader) Consume(b []byte) (consumed int, frameReady bool, err error) {
	if r.phase == phaseDone {
		r.reset()
	}
	switch r.phase {
	case phaseType:
		n, res := r.typeDecoder.Consume(b)
		if res == quicvarint.Done {
			r.frameType = FrameType(r.typeDecoder.Value())
			r.phase = phaseLength
		}
		return n, false, nil
	case phaseLength:
		n, res := r.lenDecoder.Consume(b)
		if res == quicvarint.Done {
			r.length = r.lenDecoder.Value()
			r.payload = quicvarint.NewFixedRunDecoder(int(r.length))
			r.phase = phasePayload
			if r.length == 0 {
				f, perr := buildFrame(r.frameType, nil)
				if perr != nil {
					return n, false, perr
				}
				r.ready = f
				r.phase = phaseDone
				return n, true, nil
			}
		}
		return n, false, nil
	case phasePayload:
		n, res := r.payload.Consume(b)
		if res == quicvarint.Done {
			f, perr := buildFrame(r.frameType, r.payload.Bytes())
			if perr != nil {
				return n, false, perr
			}
			r.ready = f
			r.phase = phaseDone
			return n, true, nil
		}
		return n, false, nil
	default:
		return 0, true, nil
	}
}

// GetFrame returns the decoded frame and resets the reader to accept the
// next one. Only valid when Done() is true.
func (r *FrameReader) GetFrame() Frame {
	f := r.ready
	r.reset()
	return f
}

// FinWhileIncomplete reports the error to surface when the stream's FIN
// arrives while a frame is only partially read: the
// MalformedFrame error, tagged with whichever frame type is known so
// far (or the sentinel if the type byte itself hadn't arrived).
func (r *FrameReader) FinWhileIncomplete() *Error {
	return ErrMalformedFrame(r.CurrentType())
}

func (r *FrameReader) reset() {
	r.phase = phaseType
	r.typeDecoder = quicvarint.Decoder{}
	r.lenDecoder = quicvarint.Decoder{}
	r.payload = nil
	r.ready = nil
}

func buildFrame(t FrameType, payload []byte) (Frame, error) {
	switch t {
	case FrameTypeData:
		return &DataFrame{Payload: append([]byte(nil), payload...)}, nil
	case FrameTypeHeaders:
		return &HeadersFrame{HeaderBlock: append([]byte(nil), payload...)}, nil
	case FrameTypePriority:
		return &PriorityFrame{Raw: append([]byte(nil), payload...)}, nil
	case FrameTypeCancelPush:
		id, _, err := decodeLeadingVarint(payload, t)
		if err != nil {
			return nil, err
		}
		return &CancelPushFrame{PushID: id}, nil
	case FrameTypeSettings:
		settings, err := decodeSettings(payload)
		if err != nil {
			return nil, err
		}
		return &SettingsFrame{Settings: settings}, nil
	case FrameTypePushPromise:
		id, n, err := decodeLeadingVarint(payload, t)
		if err != nil {
			return nil, err
		}
		return &PushPromiseFrame{PushID: id, HeaderBlock: append([]byte(nil), payload[n:]...)}, nil
	case FrameTypeGoaway:
		id, _, err := decodeLeadingVarint(payload, t)
		if err != nil {
			return nil, err
		}
		return &GoawayFrame{StreamID: id}, nil
	case FrameTypeMaxPushID:
		id, _, err := decodeLeadingVarint(payload, t)
		if err != nil {
			return nil, err
		}
		return &MaxPushIDFrame{PushID: id}, nil
	case FrameTypeDuplicatePush:
		id, _, err := decodeLeadingVarint(payload, t)
		if err != nil {
			return nil, err
		}
		return &DuplicatePushFrame{PushID: id}, nil
	default:
		// Unknown/reserved frame types are returned as a DataFrame holding
		// the raw payload. The original type is not kept, so callers treat
		// such a frame exactly like DATA.
		return &DataFrame{Payload: append([]byte(nil), payload...)}, nil
	}
}

// decodeLeadingVarint decodes one varint from the start of payload,
// reporting how many bytes it consumed. Used for the single-varint and
// leading-varint-then-rest frame payloads. A payload too
// short to hold a complete varint is itself a malformed frame of type t,
// since the codec has already confirmed the payload is exactly `length`
// bytes long — a short varint within it can only mean the field does not
// hold the grammar it claims to.
func decodeLeadingVarint(payload []byte, t FrameType) (value uint64, consumed int, err error) {
	var d quicvarint.Decoder
	total := 0
	for total < len(payload) {
		n, res := d.Consume(payload[total:])
		total += n
		if res == quicvarint.Done {
			return d.Value(), total, nil
		}
		if n == 0 {
			break
		}
	}
	return 0, 0, ErrMalformedFrame(t)
}

func decodeSettings(payload []byte) ([]SettingEntry, error) {
	var settings []SettingEntry
	off := 0
	for off < len(payload) {
		id, n, err := decodeLeadingVarint(payload[off:], FrameTypeSettings)
		if err != nil {
			return nil, err
		}
		off += n
		val, n, err := decodeLeadingVarint(payload[off:], FrameTypeSettings)
		if err != nil {
			return nil, err
		}
		off += n
		settings = append(settings, SettingEntry{ID: SettingType(id), Value: val})
	}
	return settings, nil
}
