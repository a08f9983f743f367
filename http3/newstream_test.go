package http3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStreamTypeReaderReadsSingleByteType(t *testing.T) {
	client, server := newFakeTransportPair()
	streamID, err := client.StreamCreate(UniDi)
	require.NoError(t, err)
	client.StreamSend(streamID, []byte{byte(streamTypeQPACKEncoder)})

	var r newStreamTypeReader
	typ, outcome := r.getType(server, streamID)
	assert.Equal(t, typeReady, outcome)
	assert.Equal(t, streamTypeQPACKEncoder, typ)
}

func TestNewStreamTypeReaderToleratesByteAtATimeDelivery(t *testing.T) {
	client, server := newFakeTransportPair()
	streamID, err := client.StreamCreate(UniDi)
	require.NoError(t, err)

	var r newStreamTypeReader

	_, outcome := r.getType(server, streamID)
	assert.Equal(t, typePending, outcome)

	client.StreamSend(streamID, []byte{byte(streamTypeControl)})
	typ, outcome := r.getType(server, streamID)
	assert.Equal(t, typeReady, outcome)
	assert.Equal(t, streamTypeControl, typ)
}

func TestNewStreamTypeReaderDropsOnFinBeforeTypeArrives(t *testing.T) {
	client, server := newFakeTransportPair()
	streamID, err := client.StreamCreate(UniDi)
	require.NoError(t, err)
	client.StreamCloseSend(streamID)

	var r newStreamTypeReader
	_, outcome := r.getType(server, streamID)
	assert.Equal(t, typeDropped, outcome)
	assert.True(t, r.fin)
}
