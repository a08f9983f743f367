package http3

// StreamDirection distinguishes bidirectional request streams from
// unidirectional control/push/QPACK streams.
type StreamDirection int

const (
	BiDi StreamDirection = iota
	UniDi
)

// ConnState mirrors the transport's own connection lifecycle, as distinct
// from the HTTP/3-layer ConnectionState machine that sits on top of it.
type ConnState int

const (
	TransportConnecting ConnState = iota
	TransportConnected
	TransportClosed
)

// Role fixes whether a Connection behaves as client or server.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// TransportEventKind discriminates the variants of TransportEvent.
type TransportEventKind int

const (
	EventNewStream TransportEventKind = iota
	EventRecvStreamReadable
	EventSendStreamWritable
	EventRecvStreamReset
	EventSendStreamStopSending
	EventSendStreamComplete
	EventSendStreamCreatable
	EventConnectionClosed
	EventZeroRttRejected
)

// TransportEvent is one event drained from Transport.Events.
// Only the fields relevant to Kind are populated.
type TransportEvent struct {
	Kind       TransportEventKind
	StreamID   uint64
	StreamDir  StreamDirection
	AppError   uint64
	CreatableDir StreamDirection
}

// Datagram is one opaque unit of transport input/output (a UDP payload,
// in the QUIC case) — the connection never looks inside it; it only
// forwards batches of these to/from the transport.
type Datagram []byte

// Transport is the external collaborator contract. The core
// package depends only on this interface — never on a concrete transport
// — so that it can be driven deterministically in tests (see
// http3/faketransport_test.go's fakeTransport) and swapped for any QUIC
// implementation in production (see package quictransport).
type Transport interface {
	StreamCreate(dir StreamDirection) (streamID uint64, err error)
	StreamSend(streamID uint64, b []byte) (n int, err error)
	StreamRecv(streamID uint64, buf []byte) (n int, fin bool, err error)
	StreamStopSending(streamID uint64, appErrorCode uint64)
	StreamCloseSend(streamID uint64)

	ProcessInput(datagrams []Datagram, now int64)
	ProcessOutput(now int64) (datagrams []Datagram, nextDeadline int64)

	// Events drains and returns the transport's pending events, in the
	// transport's own order.
	Events() []TransportEvent

	State() ConnState
	Role() Role
	Close(appErrorCode uint64, msg string)
}
