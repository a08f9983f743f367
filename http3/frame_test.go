package http3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michiboo/neqo/quicvarint"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	t.Parallel()

	frames := []Frame{
		&DataFrame{Payload: []byte("hello")},
		&HeadersFrame{HeaderBlock: []byte{0x00, 0x00}},
		&PriorityFrame{Raw: []byte{0x02, 0x01, 0x03}},
		&CancelPushFrame{PushID: 9},
		&SettingsFrame{Settings: []SettingEntry{
			{ID: SettingMaxTableSize, Value: 100},
			{ID: SettingBlockedStreams, Value: 100},
		}},
		&GoawayFrame{StreamID: 16384},
		&MaxPushIDFrame{PushID: 5},
		&DuplicatePushFrame{PushID: 5},
	}

	for _, f := range frames {
		encoded := EncodeFrame(f)

		var r FrameReader
		var decoded Frame
		for i := 0; i < len(encoded); i++ {
			n, ready, err := r.Consume(encoded[i:])
			require.NoError(t, err)
			i += n - 1
			if ready {
				decoded = r.GetFrame()
				break
			}
		}
		require.NotNil(t, decoded, "frame of type %T never completed", f)
		assert.Equal(t, f.Type(), decoded.Type())
	}
}

func TestFrameReaderByteAtATime(t *testing.T) {
	t.Parallel()

	encoded := EncodeFrame(&SettingsFrame{Settings: []SettingEntry{
		{ID: SettingMaxTableSize, Value: 100},
		{ID: SettingBlockedStreams, Value: 100},
	}})
	// matches neqo-http3's documented control-stream-initialization wire
	// bytes for a SETTINGS frame announcing these two values.
	assert.Equal(t, []byte{0x4, 0x6, 0x1, 0x40, 0x64, 0x7, 0x40, 0x64}, encoded)

	var r FrameReader
	var frame Frame
	for _, b := range encoded {
		_, ready, err := r.Consume([]byte{b})
		require.NoError(t, err)
		if ready {
			frame = r.GetFrame()
		}
	}
	require.NotNil(t, frame)
	sf, ok := frame.(*SettingsFrame)
	require.True(t, ok)
	assert.Equal(t, []SettingEntry{
		{ID: SettingMaxTableSize, Value: 100},
		{ID: SettingBlockedStreams, Value: 100},
	}, sf.Settings)
}

func TestFrameReaderAtBoundary(t *testing.T) {
	t.Parallel()

	var r FrameReader
	assert.True(t, r.AtBoundary())

	encoded := EncodeFrame(&DataFrame{Payload: []byte("x")})
	_, _, err := r.Consume(encoded[:1])
	require.NoError(t, err)
	assert.False(t, r.AtBoundary())
}

func TestFrameReaderFinWhileIncompleteReportsMalformedFrame(t *testing.T) {
	t.Parallel()

	var r FrameReader
	encoded := EncodeFrame(&DataFrame{Payload: []byte("hello")})
	_, ready, err := r.Consume(encoded[:2])
	require.NoError(t, err)
	require.False(t, ready)

	herr := r.FinWhileIncomplete()
	require.NotNil(t, herr)
	assert.Equal(t, FrameTypeData, herr.FrameType())
	assert.True(t, herr.Error() != "")
}

func TestZeroLengthFrameCompletesImmediately(t *testing.T) {
	t.Parallel()

	encoded := EncodeFrame(&DataFrame{Payload: nil})
	var r FrameReader
	n, _, err := r.Consume(encoded)
	require.NoError(t, err)
	_, ready, err := r.Consume(encoded[n:])
	require.NoError(t, err)
	require.True(t, ready)
	df, ok := r.GetFrame().(*DataFrame)
	require.True(t, ok)
	assert.Empty(t, df.Payload)
}

func TestMalformedCancelPushPayloadTooShort(t *testing.T) {
	t.Parallel()

	// CancelPush with a declared length of zero: a valid push id varint
	// can't fit in zero bytes, so this must fail closed as a malformed
	// frame rather than panicking or silently defaulting to push id 0.
	encoded := quicvarint.Append(nil, uint64(FrameTypeCancelPush))
	encoded = quicvarint.Append(encoded, 0)

	var r FrameReader
	n, _, err := r.Consume(encoded)
	require.NoError(t, err)
	_, _, err = r.Consume(encoded[n:])
	require.Error(t, err)
	herr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, FrameTypeCancelPush, herr.FrameType())
}
