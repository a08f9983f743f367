// Package quictransport adapts github.com/quic-go/quic-go to the
// http3.Transport contract. quic-go owns its socket and runs its own I/O
// goroutines, so unlike a sans-I/O transport this adapter is not driven by
// raw datagrams: ProcessInput/ProcessOutput are no-ops here, and Events
// instead drains a channel fed by background goroutines that call the
// blocking quic-go APIs (AcceptStream, AcceptUniStream, stream.Read). This
// mirrors how luoxk-restys's internal/http3.connection wraps quic.Connection
// directly rather than reimplementing it.
package quictransport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/michiboo/neqo/http3"
)

// errUnknownStream is returned when a call names a stream id this adapter
// never registered — either closed already or never opened.
var errUnknownStream = fmt.Errorf("quictransport: unknown stream")

// Conn implements http3.Transport over a live quic.Connection.
type Conn struct {
	qconn quic.Connection
	role  http3.Role

	mu      sync.Mutex
	streams map[uint64]*streamState
	closed  bool
	closeCode uint64

	events chan http3.TransportEvent
}

type streamState struct {
	dir  http3.StreamDirection
	send quic.SendStream
	recv quic.ReceiveStream

	mu     sync.Mutex
	buf    []byte
	fin    bool
	recvErr error
}

// New wraps an already-established quic.Connection (from quic.Dial or
// quic.Listener.Accept) as an http3.Transport. role must match how the
// connection was established: RoleClient for a dialed connection,
// RoleServer for an accepted one.
func New(qconn quic.Connection, role http3.Role) *Conn {
	c := &Conn{
		qconn:   qconn,
		role:    role,
		streams: make(map[uint64]*streamState),
		events:  make(chan http3.TransportEvent, 256),
	}
	go c.acceptBidiLoop()
	go c.acceptUniLoop()
	go c.watchClose()
	return c
}

func (c *Conn) watchClose() {
	<-c.qconn.Context().Done()
	c.mu.Lock()
	if !c.closed {
		c.closed = true
	}
	c.mu.Unlock()
	c.emit(http3.TransportEvent{Kind: http3.EventConnectionClosed, AppError: c.closeCode})
}

func (c *Conn) acceptBidiLoop() {
	for {
		str, err := c.qconn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		c.registerStream(uint64(str.StreamID()), http3.BiDi, str, str)
	}
}

func (c *Conn) acceptUniLoop() {
	for {
		str, err := c.qconn.AcceptUniStream(context.Background())
		if err != nil {
			return
		}
		c.registerStream(uint64(str.StreamID()), http3.UniDi, nil, str)
	}
}

func (c *Conn) registerStream(id uint64, dir http3.StreamDirection, send quic.SendStream, recv quic.ReceiveStream) {
	st := &streamState{dir: dir, send: send, recv: recv}
	c.mu.Lock()
	c.streams[id] = st
	c.mu.Unlock()
	c.emit(http3.TransportEvent{Kind: http3.EventNewStream, StreamID: id, StreamDir: dir})
	if recv != nil {
		go c.pump(id, st)
	}
}

// pump reads whatever quic-go hands back (which may be more than one byte)
// into the stream's buffer and signals readability, matching the real
// protocol's "bytes arrive in whatever granularity the network delivered
// them in" behavior that the core is built to tolerate.
func (c *Conn) pump(id uint64, st *streamState) {
	b := make([]byte, 4096)
	for {
		n, err := st.recv.Read(b)
		if n > 0 {
			st.mu.Lock()
			st.buf = append(st.buf, b[:n]...)
			st.mu.Unlock()
			c.emit(http3.TransportEvent{Kind: http3.EventRecvStreamReadable, StreamID: id})
		}
		if err != nil {
			st.mu.Lock()
			if err == io.EOF {
				st.fin = true
			} else {
				st.recvErr = err
			}
			st.mu.Unlock()
			c.emit(http3.TransportEvent{Kind: http3.EventRecvStreamReadable, StreamID: id})
			return
		}
	}
}

func (c *Conn) emit(e http3.TransportEvent) {
	select {
	case c.events <- e:
	default:
		// The channel is sized generously for normal operation; a full
		// channel here means the application has stopped draining Events
		// entirely, which is itself a caller bug we cannot recover from
		// without unbounded buffering.
	}
}

// StreamCreate opens a new stream of the given direction. Like StreamSend,
// this call is synchronous and may block briefly if the peer's stream
// limit has been reached.
func (c *Conn) StreamCreate(dir http3.StreamDirection) (uint64, error) {
	if dir == http3.UniDi {
		str, err := c.qconn.OpenUniStreamSync(context.Background())
		if err != nil {
			return 0, err
		}
		id := uint64(str.StreamID())
		c.mu.Lock()
		c.streams[id] = &streamState{dir: http3.UniDi, send: str}
		c.mu.Unlock()
		return id, nil
	}
	str, err := c.qconn.OpenStreamSync(context.Background())
	if err != nil {
		return 0, err
	}
	id := uint64(str.StreamID())
	c.mu.Lock()
	c.streams[id] = &streamState{dir: http3.BiDi, send: str, recv: str}
	c.mu.Unlock()
	go c.pump(id, c.streams[id])
	return id, nil
}

func (c *Conn) lookup(id uint64) *streamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[id]
}

// StreamSend writes b to the stream. quic-go's Write blocks until flow
// control admits the whole buffer or the stream is reset; the http3 core
// only ever calls this with data it already owns, so a full synchronous
// write is a correct (if less concurrent) implementation of "accept
// whatever the transport currently will take."
func (c *Conn) StreamSend(streamID uint64, b []byte) (int, error) {
	st := c.lookup(streamID)
	if st == nil || st.send == nil {
		return 0, errUnknownStream
	}
	return st.send.Write(b)
}

// StreamRecv drains whatever has already been buffered by pump without
// blocking: a zero-byte, no-fin return means "nothing new yet", matching
// http3.Transport's non-blocking contract.
func (c *Conn) StreamRecv(streamID uint64, buf []byte) (n int, fin bool, err error) {
	st := c.lookup(streamID)
	if st == nil {
		return 0, false, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.recvErr != nil {
		return 0, false, st.recvErr
	}
	n = copy(buf, st.buf)
	st.buf = st.buf[n:]
	fin = len(st.buf) == 0 && st.fin
	return n, fin, nil
}

func (c *Conn) StreamStopSending(streamID uint64, appErrorCode uint64) {
	st := c.lookup(streamID)
	if st == nil || st.recv == nil {
		return
	}
	st.recv.CancelRead(quic.StreamErrorCode(appErrorCode))
}

func (c *Conn) StreamCloseSend(streamID uint64) {
	st := c.lookup(streamID)
	if st == nil || st.send == nil {
		return
	}
	st.send.Close()
}

// ProcessInput is a no-op: quic-go owns the socket and feeds itself
// directly, unlike a sans-I/O transport driven by raw datagrams.
func (c *Conn) ProcessInput(datagrams []http3.Datagram, now int64) {}

// ProcessOutput is a no-op for the same reason as ProcessInput.
func (c *Conn) ProcessOutput(now int64) ([]http3.Datagram, int64) { return nil, 0 }

// Events drains every event queued since the last call.
func (c *Conn) Events() []http3.TransportEvent {
	var out []http3.TransportEvent
	for {
		select {
		case e := <-c.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func (c *Conn) State() http3.ConnState {
	select {
	case <-c.qconn.Context().Done():
		return http3.TransportClosed
	default:
		return http3.TransportConnected
	}
}

func (c *Conn) Role() http3.Role { return c.role }

func (c *Conn) Close(appErrorCode uint64, msg string) {
	c.mu.Lock()
	c.closed = true
	c.closeCode = appErrorCode
	c.mu.Unlock()
	c.qconn.CloseWithError(quic.ApplicationErrorCode(appErrorCode), msg)
}
