package http3

// ProtocolEventKind discriminates the ProtocolEvent variants.
type ProtocolEventKind int

const (
	EventHeaderReady ProtocolEventKind = iota
	EventDataReadable
	EventRequestClosed
	EventNewPushStream
	EventConnectionClosed
)

// ProtocolEvent is one application-facing event. Only the
// fields relevant to Kind are meaningful.
type ProtocolEvent struct {
	Kind      ProtocolEventKind
	StreamID  uint64
	Error     *Error  // set for RequestClosed
	ErrorCode uint64  // set for ConnectionClosed
}

// dedupeKey identifies events that coalesce: multiple readable signals for
// the same stream produce one DataReadable, for instance. Kind+StreamID is
// sufficient since each (kind, stream) pair is only ever meaningfully
// queued once before being drained.
type dedupeKey struct {
	kind     ProtocolEventKind
	streamID uint64
}

// eventQueue is an insertion-ordered, deduplicated set of ProtocolEvents.
// Request streams hold a handle to this queue (an *eventQueue) rather
// than owning their own sub-queues.
type eventQueue struct {
	order []dedupeKey
	byKey map[dedupeKey]*ProtocolEvent
}

func newEventQueue() *eventQueue {
	return &eventQueue{byKey: make(map[dedupeKey]*ProtocolEvent)}
}

func (q *eventQueue) push(e ProtocolEvent) {
	key := dedupeKey{kind: e.Kind, streamID: e.StreamID}
	if _, exists := q.byKey[key]; !exists {
		q.order = append(q.order, key)
	}
	// Last write wins for fields like fin/error on a repeated event; the
	// position in `order` is unaffected, preserving insertion order.
	ev := e
	q.byKey[key] = &ev
}

func (q *eventQueue) headerReady(streamID uint64) {
	q.push(ProtocolEvent{Kind: EventHeaderReady, StreamID: streamID})
}

func (q *eventQueue) dataReadable(streamID uint64) {
	q.push(ProtocolEvent{Kind: EventDataReadable, StreamID: streamID})
}

func (q *eventQueue) requestClosed(streamID uint64, err *Error) {
	q.push(ProtocolEvent{Kind: EventRequestClosed, StreamID: streamID, Error: err})
}

func (q *eventQueue) newPushStream(streamID uint64) {
	q.push(ProtocolEvent{Kind: EventNewPushStream, StreamID: streamID})
}

func (q *eventQueue) connectionClosed(code uint64) {
	q.push(ProtocolEvent{Kind: EventConnectionClosed, ErrorCode: code})
}

// drain returns all queued events in insertion order and clears the
// queue.
func (q *eventQueue) drain() []ProtocolEvent {
	out := make([]ProtocolEvent, 0, len(q.order))
	for _, k := range q.order {
		out = append(out, *q.byKey[k])
	}
	q.order = nil
	q.byKey = make(map[dedupeKey]*ProtocolEvent)
	return out
}

// clear discards all queued events without returning them (used when
// the transport reports that the connection has closed).
func (q *eventQueue) clear() {
	q.order = nil
	q.byKey = make(map[dedupeKey]*ProtocolEvent)
}

// filterBelow removes HeaderReady/DataReadable/NewPushStream events for
// stream ids >= cutoff, keeping RequestClosed and ConnectionClosed
// unconditionally.
func (q *eventQueue) filterBelow(cutoff uint64) {
	kept := q.order[:0]
	for _, k := range q.order {
		e := q.byKey[k]
		switch e.Kind {
		case EventHeaderReady, EventDataReadable, EventNewPushStream:
			if e.StreamID >= cutoff {
				delete(q.byKey, k)
				continue
			}
		}
		kept = append(kept, k)
	}
	q.order = kept
}
