package http3

// fakeTransport is a deterministic, in-memory http3.Transport used to drive
// two Connections directly against each other without a real QUIC stack,
// mirroring how connection.rs's own test suite pairs an Http3Connection
// against a plain neqo_transport::Connection.
type fakeTransport struct {
	role       Role
	nextBidiID uint64
	nextUniID  uint64
	peer       *fakeTransport
	streams    map[uint64]*fakeStream
	events     []TransportEvent
	closed     bool
	closeCode  uint64
}

type fakeStream struct {
	dir      StreamDirection
	recvBuf  []byte
	recvFin  bool
	sendFin  bool
	stopCode *uint64
}

func newFakeTransportPair() (client *fakeTransport, server *fakeTransport) {
	c := &fakeTransport{role: RoleClient, streams: make(map[uint64]*fakeStream)}
	s := &fakeTransport{role: RoleServer, streams: make(map[uint64]*fakeStream)}
	c.peer = s
	s.peer = c
	return c, s
}

// allocID assigns stream ids in the QUIC scheme (RFC 9000 §2.1): the low
// two bits encode initiator parity and directionality, and bidi/uni
// streams are numbered from two independent counters, so ids never
// collide between client/server-initiated or bidi/uni streams.
func (f *fakeTransport) allocID(dir StreamDirection) uint64 {
	var base uint64
	if f.role == RoleServer {
		base = 1
	}
	if dir == UniDi {
		base += 2
		id := base + f.nextUniID*4
		f.nextUniID++
		return id
	}
	id := base + f.nextBidiID*4
	f.nextBidiID++
	return id
}

func (f *fakeTransport) StreamCreate(dir StreamDirection) (uint64, error) {
	id := f.allocID(dir)
	f.streams[id] = &fakeStream{dir: dir}
	f.peer.streams[id] = &fakeStream{dir: dir}
	f.peer.events = append(f.peer.events, TransportEvent{Kind: EventNewStream, StreamID: id, StreamDir: dir})
	return id, nil
}

func (f *fakeTransport) StreamSend(streamID uint64, b []byte) (int, error) {
	peerStream := f.peer.streams[streamID]
	if peerStream == nil {
		return len(b), nil
	}
	peerStream.recvBuf = append(peerStream.recvBuf, b...)
	f.peer.events = append(f.peer.events, TransportEvent{Kind: EventRecvStreamReadable, StreamID: streamID})
	return len(b), nil
}

func (f *fakeTransport) StreamRecv(streamID uint64, buf []byte) (n int, fin bool, err error) {
	st := f.streams[streamID]
	if st == nil {
		return 0, false, nil
	}
	n = copy(buf, st.recvBuf)
	st.recvBuf = st.recvBuf[n:]
	fin = len(st.recvBuf) == 0 && st.recvFin
	return n, fin, nil
}

func (f *fakeTransport) StreamStopSending(streamID uint64, appErrorCode uint64) {
	if st := f.streams[streamID]; st != nil {
		code := appErrorCode
		st.stopCode = &code
	}
}

func (f *fakeTransport) StreamCloseSend(streamID uint64) {
	if st := f.peer.streams[streamID]; st != nil {
		st.recvFin = true
		f.peer.events = append(f.peer.events, TransportEvent{Kind: EventRecvStreamReadable, StreamID: streamID})
	}
}

func (f *fakeTransport) ProcessInput(datagrams []Datagram, now int64)  {}
func (f *fakeTransport) ProcessOutput(now int64) ([]Datagram, int64)   { return nil, 0 }

func (f *fakeTransport) Events() []TransportEvent {
	out := f.events
	f.events = nil
	return out
}

func (f *fakeTransport) State() ConnState {
	if f.closed {
		return TransportClosed
	}
	return TransportConnected
}

func (f *fakeTransport) Role() Role { return f.role }

func (f *fakeTransport) Close(appErrorCode uint64, msg string) {
	f.closed = true
	f.closeCode = appErrorCode
	f.peer.closed = true
	f.peer.closeCode = appErrorCode
}

// pump drives both connections' HTTP/3 event loops for a fixed 64 rounds;
// it does not check whether either side still has pending transport
// events.
func pump(client, server *Connection) {
	for i := 0; i < 64; i++ {
		client.ProcessInput(nil, 0)
		client.ProcessHTTP3()
		server.ProcessInput(nil, 0)
		server.ProcessHTTP3()
	}
}
