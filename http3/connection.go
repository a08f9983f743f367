package http3

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ConnectionStateKind enumerates the HTTP/3 connection state machine
//: Initializing → Connected → GoingAway → Closing → Closed.
// Closing may be entered from any non-Closed state; Closed is terminal.
type ConnectionStateKind int

const (
	StateInitializing ConnectionStateKind = iota
	StateConnected
	StateGoingAway
	StateClosing
	StateClosed
)

// ConnectionState is the current state plus, for Closing/Closed, the
// associated application error code.
type ConnectionState struct {
	Kind ConnectionStateKind
	Code uint64
}

func (s ConnectionState) String() string {
	switch s.Kind {
	case StateInitializing:
		return "Initializing"
	case StateConnected:
		return "Connected"
	case StateGoingAway:
		return "GoingAway"
	case StateClosing:
		return fmt.Sprintf("Closing(%d)", s.Code)
	case StateClosed:
		return fmt.Sprintf("Closed(%d)", s.Code)
	default:
		return "Unknown"
	}
}

// ConnectionConfig bundles the constructor arguments for NewConnection.
type ConnectionConfig struct {
	Role              Role
	QPACKMaxTableSize uint32
	QPACKMaxBlockedStreams uint16
	// Handler is required when Role is RoleServer.
	Handler ServerHandler
}

// Connection is THE CORE: the HTTP/3 connection state machine, stream
// demultiplexer, framing, settings negotiation, GOAWAY handling, and the
// event queue exposed to applications.
type Connection struct {
	state ConnectionStateKind
	code  uint64

	role Role
	t    Transport

	settings        Settings
	settingsReceived bool

	localControl  localControlStream
	remoteControl remoteControlStream

	newStreams map[uint64]*newStreamTypeReader

	qpackEncoder *qpackEncoderAdapter
	qpackDecoder *qpackDecoderAdapter

	streamsReadable      *orderedSet
	streamsHaveDataToSend *orderedSet

	events *eventQueue

	// client only
	requestStreamsClient map[uint64]*requestStreamClient
	// server only
	requestStreamsServer map[uint64]*requestStreamServer
	handler              ServerHandler
	maxPushID            uint64

	log *zap.SugaredLogger
}

// NewConnection constructs a connection in the Initializing state. The
// transport is pre-constructed and owned exclusively by this connection
// for its lifetime.
func NewConnection(cfg ConnectionConfig, t Transport) *Connection {
	if cfg.QPACKMaxTableSize > (1<<30)-1 {
		panic("http3: QPACK max table size too large")
	}
	c := &Connection{
		state:                 StateInitializing,
		role:                  cfg.Role,
		t:                     t,
		settings:              defaultSettings(),
		newStreams:            make(map[uint64]*newStreamTypeReader),
		qpackEncoder:          newQPACKEncoderAdapter(),
		qpackDecoder:          newQPACKDecoderAdapter(cfg.QPACKMaxTableSize, cfg.QPACKMaxBlockedStreams),
		streamsReadable:       newOrderedSet(),
		streamsHaveDataToSend: newOrderedSet(),
		events:                newEventQueue(),
		requestStreamsClient:  make(map[uint64]*requestStreamClient),
		requestStreamsServer:  make(map[uint64]*requestStreamServer),
		handler:               cfg.Handler,
		log:                   newLogger(cfg.Role),
	}
	c.settings.MaxTableSize = cfg.QPACKMaxTableSize
	c.settings.BlockedStreams = cfg.QPACKMaxBlockedStreams
	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState { return ConnectionState{Kind: c.state, Code: c.code} }

// Process is the single-shot tick: feed inbound datagrams to the
// transport, run the HTTP/3 event loop, and collect outbound datagrams.
func (c *Connection) Process(in []Datagram, now int64) (out []Datagram, nextDeadline int64) {
	c.ProcessInput(in, now)
	c.ProcessHTTP3()
	return c.ProcessOutput(now)
}

// ProcessInput feeds inbound datagrams to the transport and checks for a
// state-machine edge.
func (c *Connection) ProcessInput(in []Datagram, now int64) {
	c.t.ProcessInput(in, now)
	c.checkStateChange()
}

// ProcessOutput asks the transport to render outbound datagrams.
func (c *Connection) ProcessOutput(now int64) (out []Datagram, nextDeadline int64) {
	return c.t.ProcessOutput(now)
}

// checkStateChange advances Initializing→Connected or Closing→Closed
// based on the transport's own state.
func (c *Connection) checkStateChange() {
	switch c.state {
	case StateInitializing:
		if c.t.State() == TransportConnected {
			c.state = StateConnected
			if err := c.initializeHTTP3(); err != nil {
				c.fail(err)
			}
		}
	case StateClosing:
		if c.t.State() == TransportClosed {
			c.state = StateClosed
		}
	}
}

// initializeHTTP3 runs the Initializing→Connected edge actions: create
// the local control stream and send SETTINGS, and create the QPACK
// encoder/decoder streams. Sent exactly once.
func (c *Connection) initializeHTTP3() error {
	if err := c.localControl.createAndAnnounce(c.t); err != nil {
		return err
	}
	c.localControl.sendFrame(&SettingsFrame{Settings: []SettingEntry{
		{ID: SettingMaxTableSize, Value: uint64(c.qpackDecoder.maxTableSize)},
		{ID: SettingBlockedStreams, Value: uint64(c.qpackDecoder.maxBlockedStreams)},
	}})
	if err := c.qpackEncoder.addSendStream(c.t); err != nil {
		return err
	}
	if err := c.qpackDecoder.addSendStream(c.t); err != nil {
		return err
	}
	return nil
}

// fail maps any internal error to a Closing transition and issues close
// to the transport. Returns true if err was non-nil (so callers can
// short-circuit the rest of their tick).
func (c *Connection) fail(err error) bool {
	if err == nil {
		return false
	}
	var code uint64 = 0x0101
	if he, ok := err.(*Error); ok {
		code = he.Code()
	}
	c.log.Infow("connection error", "error", err)
	c.Close(code, err.Error())
	return true
}

// ProcessHTTP3 runs the HTTP/3-layer event loop for one tick: consume transport events, service readable streams, then drain
// sendable streams.
func (c *Connection) ProcessHTTP3() {
	if c.state != StateConnected && c.state != StateGoingAway {
		return
	}
	if c.fail(c.checkConnectionEvents()) {
		return
	}
	if c.fail(c.processReading()) {
		return
	}
	c.fail(c.processSending())
}

func (c *Connection) checkConnectionEvents() error {
	for _, e := range c.t.Events() {
		switch e.Kind {
		case EventNewStream:
			if err := c.handleNewStream(e.StreamID, e.StreamDir); err != nil {
				return err
			}
		case EventSendStreamWritable:
			// ignored: drain is opportunistic next tick
		case EventRecvStreamReadable:
			c.streamsReadable.insert(e.StreamID)
		case EventRecvStreamReset, EventSendStreamStopSending,
			EventSendStreamComplete, EventSendStreamCreatable:
			// acknowledged, no protocol-layer state change required
		case EventConnectionClosed:
			c.events.clear()
			c.events.connectionClosed(e.AppError)
			c.state = StateClosed
			c.code = e.AppError
		case EventZeroRttRejected:
			// 0-RTT renegotiation isn't handled; ignoring this would leave
			// outstanding requests hung indefinitely, so close
			// deterministically instead.
			return ErrGeneralProtocolError
		}
	}
	return nil
}

func (c *Connection) handleNewStream(streamID uint64, dir StreamDirection) error {
	switch dir {
	case BiDi:
		if c.role == RoleServer {
			c.requestStreamsServer[streamID] = newRequestStreamServer(streamID)
			c.streamsReadable.insert(streamID)
		} else {
			c.t.StreamStopSending(streamID, 0)
		}
	case UniDi:
		r := c.newStreams[streamID]
		if r == nil {
			r = &newStreamTypeReader{}
			c.newStreams[streamID] = r
		}
		typ, outcome := r.getType(c.t, streamID)
		switch outcome {
		case typeDropped:
			delete(c.newStreams, streamID)
		case typeReady:
			delete(c.newStreams, streamID)
			if err := c.decodeNewStream(typ, streamID); err != nil {
				return err
			}
		case typePending:
			// wait for more bytes on a future RecvStreamReadable
		}
	}
	return nil
}

func (c *Connection) decodeNewStream(streamType uint64, streamID uint64) error {
	switch streamType {
	case streamTypeControl:
		if err := c.remoteControl.bind(streamID); err != nil {
			return err
		}
		c.streamsReadable.insert(streamID)
		return nil
	case streamTypePush:
		if c.role == RoleServer {
			c.t.StreamStopSending(streamID, ErrWrongStreamDirection.Code())
		} else {
			c.t.StreamStopSending(streamID, ErrPushRefused.Code())
		}
		return nil
	case streamTypeQPACKEncoder:
		if c.qpackDecoder.hasRecvStream() {
			return ErrWrongStreamCount
		}
		if err := c.qpackDecoder.addRecvStream(streamID); err != nil {
			return err
		}
		c.streamsReadable.insert(streamID)
		return nil
	case streamTypeQPACKDecoder:
		if c.qpackEncoder.hasRecvStream() {
			return ErrWrongStreamCount
		}
		if err := c.qpackEncoder.addRecvStream(streamID); err != nil {
			return err
		}
		c.streamsReadable.insert(streamID)
		return nil
	default:
		c.t.StreamStopSending(streamID, ErrUnknownStreamType.Code())
		return nil
	}
}

// processReading services every stream marked readable this tick, in
// ascending stream-id order for a deterministic tie-break.
func (c *Connection) processReading() error {
	readable := c.streamsReadable.drain()
	for _, streamID := range readable {
		if err := c.handleStreamReadable(streamID); err != nil {
			return err
		}
	}
	return nil
}

// handleStreamReadable implements the dispatch chain:
// request stream (client or server, by role) → remote control → QPACK
// encoder inbound → QPACK decoder inbound → pending new-stream-type
// reader. First match wins; a stream matching none is logged and ignored.
func (c *Connection) handleStreamReadable(streamID uint64) error {
	var unblocked []uint64

	switch {
	case c.role == RoleClient && c.readStreamClient(streamID, false):
	case c.role == RoleServer && c.readStreamServer(streamID):
	case c.remoteControl.isMine(streamID):
		for {
			if err := c.remoteControl.receive(c.t, streamID); err != nil {
				return err
			}
			if c.remoteControl.fin {
				return ErrClosedCriticalStream
			}
			if !c.remoteControl.reader.Done() {
				break
			}
			if err := c.handleControlFrame(); err != nil {
				return err
			}
		}
	default:
		matched, err := c.qpackEncoder.routeInbound(c.t, streamID)
		if err != nil {
			return err
		}
		switch {
		case matched:
		case c.qpackDecoder.isRecvStream(streamID):
			u, err := c.qpackDecoder.routeInbound(c.t, streamID)
			if err != nil {
				return err
			}
			unblocked = u
		default:
			if r, ok := c.newStreams[streamID]; ok {
				typ, outcome := r.getType(c.t, streamID)
				switch outcome {
				case typeDropped:
					delete(c.newStreams, streamID)
				case typeReady:
					delete(c.newStreams, streamID)
					if err := c.decodeNewStream(typ, streamID); err != nil {
						return err
					}
				case typePending:
				}
			} else {
				c.log.Debugw("readable on unknown stream", "stream_id", streamID)
			}
		}
	}

	for _, id := range unblocked {
		if c.role == RoleClient {
			c.readStreamClient(id, true)
		} else {
			c.readStreamServer(id)
		}
	}
	return nil
}

// readStreamClient services one client request stream. Returns false
// immediately (without side effects) if streamID isn't a known client
// request stream, so the caller's dispatch chain can fall through.
func (c *Connection) readStreamClient(streamID uint64, unblocked bool) bool {
	rs, ok := c.requestStreamsClient[streamID]
	if !ok {
		return false
	}
	var err error
	if unblocked {
		err = rs.unblock()
	} else {
		err = rs.receive(c.t)
	}
	if err != nil {
		if he, ok := err.(*Error); ok && he.IsStreamError() {
			delete(c.requestStreamsClient, streamID)
			c.t.StreamStopSending(streamID, he.Code())
			return true
		}
		c.fail(err)
		return true
	}
	if rs.done() {
		delete(c.requestStreamsClient, streamID)
	}
	return true
}

// readStreamServer services one server request stream, invoking the
// handler once the request has been fully read.
func (c *Connection) readStreamServer(streamID uint64) bool {
	rs, ok := c.requestStreamsServer[streamID]
	if !ok {
		return false
	}
	if err := rs.receive(c.t); err != nil {
		if he, ok := err.(*Error); ok && he.IsStreamError() {
			delete(c.requestStreamsServer, streamID)
			c.t.StreamStopSending(streamID, he.Code())
			return true
		}
		c.fail(err)
		return true
	}
	if rs.doneReadingRequest() {
		if c.handler != nil {
			// fin is always passed as false; callers shouldn't treat it as
			// reflecting whether the request body fully arrived.
			headers, body := c.handler.OnRequest(rs.getRequestHeaders(), false)
			rs.setResponse(headers, body)
		}
		if rs.hasDataToSend() {
			c.streamsHaveDataToSend.insert(streamID)
		} else {
			delete(c.requestStreamsServer, streamID)
		}
	}
	return true
}

// handleControlFrame validates and dispatches one completed frame from
// the remote control stream.
func (c *Connection) handleControlFrame() error {
	if !c.remoteControl.reader.Done() {
		return nil
	}
	f := c.remoteControl.reader.GetFrame()
	if _, isSettings := f.(*SettingsFrame); isSettings {
		if c.settingsReceived {
			return ErrUnexpectedFrame
		}
		c.settingsReceived = true
	} else if !c.settingsReceived {
		return ErrMissingSettings
	}
	switch fr := f.(type) {
	case *SettingsFrame:
		return c.handleSettings(fr.Settings)
	case *PriorityFrame:
		return nil
	case *CancelPushFrame:
		return nil
	case *GoawayFrame:
		return c.handleGoaway(fr.StreamID)
	case *MaxPushIDFrame:
		return c.handleMaxPushID(fr.PushID)
	default:
		return ErrWrongStream
	}
}

func (c *Connection) handleSettings(entries []SettingEntry) error {
	for _, s := range entries {
		switch s.ID {
		case SettingMaxHeaderListSize:
			c.settings.MaxHeaderListSize = s.Value
		case SettingNumPlaceholders:
			if c.role == RoleServer {
				return ErrWrongStreamDirection
			}
			c.settings.NumPlaceholders = s.Value
		case SettingMaxTableSize:
			c.qpackEncoder.setMaxCapacity(s.Value)
		case SettingBlockedStreams:
			c.qpackEncoder.setMaxBlockedStreams(s.Value)
		default:
			// unknown setting ids are ignored
		}
	}
	return nil
}

// handleGoaway implements GOAWAY handling: streams at or above the
// cutoff are closed with RequestCancelled, their events are filtered
// out, and the connection moves to GoingAway.
func (c *Connection) handleGoaway(cutoff uint64) error {
	if c.role == RoleServer {
		return ErrUnexpectedFrame
	}
	for id := range c.requestStreamsClient {
		if id >= cutoff {
			c.events.requestClosed(id, ErrRequestCancelled)
			delete(c.requestStreamsClient, id)
		}
	}
	c.events.filterBelow(cutoff)
	if c.state == StateConnected {
		c.state = StateGoingAway
	}
	return nil
}

func (c *Connection) handleMaxPushID(id uint64) error {
	if c.role == RoleClient {
		return ErrUnexpectedFrame
	}
	// Push is unsupported in this profile, so there is nothing to bound
	// against; the value is kept purely for observability.
	c.maxPushID = id
	return nil
}

// processSending drains the local control stream, every stream queued in
// streamsHaveDataToSend, and both QPACK adapter streams.
func (c *Connection) processSending() error {
	if err := c.localControl.drain(c.t); err != nil {
		return err
	}
	toSend := c.streamsHaveDataToSend.drain()
	if c.role == RoleClient {
		for _, streamID := range toSend {
			rs, ok := c.requestStreamsClient[streamID]
			if !ok {
				continue
			}
			if err := rs.send(c.t); err != nil {
				return err
			}
			if rs.hasDataToSend() {
				c.streamsHaveDataToSend.insert(streamID)
			}
		}
	} else {
		for _, streamID := range toSend {
			rs, ok := c.requestStreamsServer[streamID]
			if !ok {
				continue
			}
			if err := rs.send(c.t); err != nil {
				return err
			}
			if rs.hasDataToSend() {
				c.streamsHaveDataToSend.insert(streamID)
			} else {
				delete(c.requestStreamsServer, streamID)
			}
		}
	}
	if err := c.qpackDecoder.drain(c.t); err != nil {
		return err
	}
	return c.qpackEncoder.drain(c.t)
}

// Close transitions to Closing and tells the transport to close. Request
// streams are cleared; a warning is logged if active requests existed and
// the code is zero.
func (c *Connection) Close(appErrorCode uint64, msg string) {
	c.state = StateClosing
	c.code = appErrorCode
	if (len(c.requestStreamsClient) != 0 || len(c.requestStreamsServer) != 0) && appErrorCode == 0 {
		c.log.Warnw("close() called with active requests still outstanding")
	}
	c.requestStreamsClient = make(map[uint64]*requestStreamClient)
	c.requestStreamsServer = make(map[uint64]*requestStreamServer)
	c.t.Close(appErrorCode, msg)
}

// Fetch opens a new client request stream. Client only.
func (c *Connection) Fetch(method, scheme, host, path string, headers []HeaderField) (streamID uint64, err error) {
	if c.role != RoleClient {
		return 0, ErrGeneralProtocolError
	}
	if c.state != StateConnected {
		return 0, ErrGeneralProtocolError
	}
	id, err := c.t.StreamCreate(BiDi)
	if err != nil {
		return 0, err
	}
	c.requestStreamsClient[id] = newRequestStreamClient(id, method, scheme, host, path, headers, c.events)
	c.streamsHaveDataToSend.insert(id)
	return id, nil
}

// ErrInvalidStreamID is returned by ReadData/GetHeaders for an unknown
// stream id.
var ErrInvalidStreamID = fmt.Errorf("http3: invalid stream id")

// ErrConnectionError is returned by ReadData once the connection is
// Closing or Closed, for instance after a connection-fatal error; the
// specific cause is then only visible via State().
var ErrConnectionError = fmt.Errorf("http3: connection error")

// GetHeaders returns the decoded response headers for a client request
// stream, if any have arrived yet.
func (c *Connection) GetHeaders(streamID uint64) ([]HeaderField, error) {
	rs, ok := c.requestStreamsClient[streamID]
	if !ok {
		return nil, ErrInvalidStreamID
	}
	return rs.getHeaders(), nil
}

// ReadData copies buffered response body bytes for a client request
// stream into buf.
func (c *Connection) ReadData(streamID uint64, buf []byte) (n int, fin bool, err error) {
	if c.state == StateClosing || c.state == StateClosed {
		return 0, false, ErrConnectionError
	}
	rs, ok := c.requestStreamsClient[streamID]
	if !ok {
		return 0, false, ErrInvalidStreamID
	}
	n, fin = rs.readData(buf)
	if fin {
		delete(c.requestStreamsClient, streamID)
	}
	if n > 0 && !fin {
		c.streamsReadable.insert(streamID)
	}
	return n, fin, nil
}

// Events drains and returns all queued protocol events, in insertion
// order.
func (c *Connection) Events() []ProtocolEvent {
	return c.events.drain()
}

// orderedSet is an insertion-deduplicated, ascending-order set of stream
// ids.
type orderedSet struct {
	present map[uint64]struct{}
}

func newOrderedSet() *orderedSet { return &orderedSet{present: make(map[uint64]struct{})} }

func (s *orderedSet) insert(id uint64) { s.present[id] = struct{}{} }

// drain returns every member in ascending order and empties the set.
func (s *orderedSet) drain() []uint64 {
	out := make([]uint64, 0, len(s.present))
	for id := range s.present {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	s.present = make(map[uint64]struct{})
	return out
}
