package http3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	gotHeaders []HeaderField
	respHeaders []HeaderField
	respBody    []byte
}

func (h *echoHandler) OnRequest(headers []HeaderField, fin bool) ([]HeaderField, []byte) {
	h.gotHeaders = headers
	if h.respHeaders == nil {
		h.respHeaders = []HeaderField{{Name: ":status", Value: "200"}}
	}
	return h.respHeaders, h.respBody
}

func newClientServerPair(handler ServerHandler) (*Connection, *Connection, *fakeTransport, *fakeTransport) {
	ct, st := newFakeTransportPair()
	client := NewConnection(ConnectionConfig{Role: RoleClient, QPACKMaxTableSize: 100, QPACKMaxBlockedStreams: 100}, ct)
	server := NewConnection(ConnectionConfig{Role: RoleServer, QPACKMaxTableSize: 100, QPACKMaxBlockedStreams: 100, Handler: handler}, st)
	return client, server, ct, st
}

func TestConnectInitializesControlAndQPACKStreams(t *testing.T) {
	t.Parallel()

	client, server, _, _ := newClientServerPair(&echoHandler{})
	pump(client, server)

	assert.Equal(t, StateConnected, client.State().Kind)
	assert.Equal(t, StateConnected, server.State().Kind)
}

func TestFetchRoundTrip(t *testing.T) {
	t.Parallel()

	handler := &echoHandler{respBody: []byte("hi there")}
	client, server, _, _ := newClientServerPair(handler)
	pump(client, server)

	streamID, err := client.Fetch("GET", "https", "example.com", "/", nil)
	require.NoError(t, err)

	pump(client, server)

	require.NotNil(t, handler.gotHeaders)
	var method, path string
	for _, f := range handler.gotHeaders {
		switch f.Name {
		case ":method":
			method = f.Value
		case ":path":
			path = f.Value
		}
	}
	assert.Equal(t, "GET", method)
	assert.Equal(t, "/", path)

	var gotHeaderReady, gotDataReadable bool
	for _, e := range client.Events() {
		switch e.Kind {
		case EventHeaderReady:
			gotHeaderReady = true
		case EventDataReadable:
			gotDataReadable = true
		}
	}
	assert.True(t, gotHeaderReady)
	assert.True(t, gotDataReadable)

	fields, err := client.GetHeaders(streamID)
	require.NoError(t, err)
	var status string
	for _, f := range fields {
		if f.Name == ":status" {
			status = f.Value
		}
	}
	assert.Equal(t, "200", status)

	buf := make([]byte, 64)
	n, fin, err := client.ReadData(streamID, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(buf[:n]))
	assert.True(t, fin)
}

func TestMissingSettingsAsFirstControlFrameClosesConnection(t *testing.T) {
	t.Parallel()

	client, server, _, _ := newClientServerPair(&echoHandler{})
	client.ProcessInput(nil, 0)
	require.Equal(t, StateConnected, client.State().Kind)

	// Open the server's control stream by hand, before the server's own
	// HTTP/3 layer opens one, so that PRIORITY is the first frame on it.
	serverControlStreamID, err := server.t.StreamCreate(UniDi)
	require.NoError(t, err)
	priority := append([]byte{byte(streamTypeControl)}, EncodeFrame(&PriorityFrame{})...)
	_, err = server.t.StreamSend(serverControlStreamID, priority)
	require.NoError(t, err)

	pump(client, server)

	assert.Equal(t, StateClosed, client.State().Kind)
	assert.Equal(t, ErrMissingSettings.Code(), client.State().Code)
}

func TestIncompleteDataFrameOnFinClosesConnectionAsMalformed(t *testing.T) {
	t.Parallel()

	handler := &echoHandler{}
	client, server, _, _ := newClientServerPair(handler)
	pump(client, server)

	streamID, err := client.Fetch("GET", "https", "example.com", "/", nil)
	require.NoError(t, err)

	_, err = server.t.StreamSend(streamID, []byte{0x00, 0x03, 0x61, 0x62})
	require.NoError(t, err)
	server.t.StreamCloseSend(streamID)

	pump(client, server)

	assert.Equal(t, StateClosed, client.State().Kind)
	assert.Equal(t, ErrMalformedFrame(FrameTypeData).Code(), client.State().Code)

	buf := make([]byte, 8)
	_, _, err = client.ReadData(streamID, buf)
	assert.Error(t, err)
}

func TestSecondSettingsFrameClosesConnection(t *testing.T) {
	t.Parallel()

	client, server, _, _ := newClientServerPair(&echoHandler{})
	pump(client, server)
	require.Equal(t, StateConnected, client.State().Kind)

	// The server's control stream is the lowest server-initiated uni
	// stream id, 3; send a second SETTINGS frame on it.
	settings := EncodeFrame(&SettingsFrame{Settings: []SettingEntry{{ID: SettingMaxTableSize, Value: 1}}})
	serverControlStreamID := uint64(3)
	_, err := server.t.StreamSend(serverControlStreamID, settings)
	require.NoError(t, err)

	pump(client, server)

	assert.Equal(t, StateClosed, client.State().Kind)
	assert.Equal(t, ErrUnexpectedFrame.Code(), client.State().Code)
}

func TestGoawayClosesStreamsAboveCutoffAndEntersGoingAway(t *testing.T) {
	t.Parallel()

	handler := &echoHandler{}
	client, server, _, _ := newClientServerPair(handler)
	pump(client, server)

	id1, err := client.Fetch("GET", "https", "example.com", "/a", nil)
	require.NoError(t, err)
	id2, err := client.Fetch("GET", "https", "example.com", "/b", nil)
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	goaway := EncodeFrame(&GoawayFrame{StreamID: id2})
	serverControlStreamID := uint64(3)
	_, err = server.t.StreamSend(serverControlStreamID, goaway)
	require.NoError(t, err)

	pump(client, server)

	assert.Equal(t, StateGoingAway, client.State().Kind)

	var sawClosed bool
	for _, e := range client.Events() {
		if e.Kind == EventRequestClosed && e.StreamID == id2 {
			sawClosed = true
		}
		if e.Kind == EventRequestClosed && e.StreamID == id1 {
			t.Fatalf("stream below cutoff should not be closed by GOAWAY")
		}
	}
	assert.True(t, sawClosed)
}

func TestUnknownStreamTypeGetsStopSending(t *testing.T) {
	t.Parallel()

	client, server, ct, _ := newClientServerPair(&echoHandler{})
	pump(client, server)

	id, err := server.t.StreamCreate(UniDi)
	require.NoError(t, err)
	_, err = server.t.StreamSend(id, []byte{0x41, 0x19})
	require.NoError(t, err)

	pump(client, server)

	st := ct.streams[id]
	require.NotNil(t, st)
	require.NotNil(t, st.stopCode)
	assert.Equal(t, ErrUnknownStreamType.Code(), *st.stopCode)
	assert.Equal(t, StateConnected, client.State().Kind)
}

func TestClientReceivedPushStreamIsRefused(t *testing.T) {
	t.Parallel()

	client, server, ct, _ := newClientServerPair(&echoHandler{})
	pump(client, server)

	id, err := server.t.StreamCreate(UniDi)
	require.NoError(t, err)
	_, err = server.t.StreamSend(id, []byte{0x01})
	require.NoError(t, err)

	pump(client, server)

	st := ct.streams[id]
	require.NotNil(t, st)
	require.NotNil(t, st.stopCode)
	assert.Equal(t, ErrPushRefused.Code(), *st.stopCode)
}

func TestServerReceivedPushStreamIsWrongDirection(t *testing.T) {
	t.Parallel()

	client, server, _, st := newClientServerPair(&echoHandler{})
	pump(client, server)

	id, err := client.t.StreamCreate(UniDi)
	require.NoError(t, err)
	_, err = client.t.StreamSend(id, []byte{0x01})
	require.NoError(t, err)

	pump(client, server)

	serverStream := st.streams[id]
	require.NotNil(t, serverStream)
	require.NotNil(t, serverStream.stopCode)
	assert.Equal(t, ErrWrongStreamDirection.Code(), *serverStream.stopCode)
}

// TestServerStreamErrorRemovesFromServerMap guards against removing an
// errored server-side request stream from the wrong side's bookkeeping.
// Sending a frame that's illegal on a server request stream (a SETTINGS
// frame) must delete it from the server's own request map, not silently
// no-op or touch client bookkeeping.
func TestServerStreamErrorRemovesFromServerMap(t *testing.T) {
	t.Parallel()

	client, server, _, _ := newClientServerPair(&echoHandler{})
	pump(client, server)

	// Open the request stream directly rather than through Fetch: Fetch
	// sends HEADERS and FIN, and the server would answer and drop the
	// stream before the bogus frame arrives.
	streamID, err := client.t.StreamCreate(BiDi)
	require.NoError(t, err)
	pump(client, server)

	require.Contains(t, server.requestStreamsServer, streamID)

	bogus := EncodeFrame(&SettingsFrame{Settings: nil})
	_, err = client.t.StreamSend(streamID, bogus)
	require.NoError(t, err)

	pump(client, server)

	assert.NotContains(t, server.requestStreamsServer, streamID)
	assert.Equal(t, StateConnected, server.State().Kind)
}
