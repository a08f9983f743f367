package quicvarint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendLen(t *testing.T) {
	t.Parallel()

	cases := []struct {
		v   uint64
		n   int
	}{
		{0, 1},
		{37, 1},
		{63, 1},
		{64, 2},
		{15293, 2},
		{16383, 2},
		{16384, 4},
		{494878333, 4},
		{1073741823, 4},
		{1073741824, 8},
		{151288809941952652, 8},
		{Max, 8},
	}

	for _, c := range cases {
		assert.Equal(t, c.n, Len(c.v))
		encoded := Append(nil, c.v)
		assert.Len(t, encoded, c.n)
	}
}

func TestDecoderWholeValueAtOnce(t *testing.T) {
	t.Parallel()

	for _, v := range []uint64{0, 1, 63, 64, 16383, 16384, 1073741823, 1073741824, Max} {
		var d Decoder
		encoded := Append(nil, v)
		n, res := d.Consume(encoded)
		require.Equal(t, Done, res)
		assert.Equal(t, len(encoded), n)
		assert.Equal(t, v, d.Value())
	}
}

func TestDecoderOneByteAtATime(t *testing.T) {
	t.Parallel()

	v := uint64(494878333)
	encoded := Append(nil, v)

	var d Decoder
	var total int
	var res Result
	for _, b := range encoded {
		var n int
		n, res = d.Consume([]byte{b})
		total += n
		if res == Done {
			break
		}
	}
	assert.Equal(t, Done, res)
	assert.Equal(t, len(encoded), total)
	assert.Equal(t, v, d.Value())
}

func TestDecoderReusableAfterValue(t *testing.T) {
	t.Parallel()

	var d Decoder
	first := Append(nil, 17)
	_, res := d.Consume(first)
	require.Equal(t, Done, res)
	assert.Equal(t, uint64(17), d.Value())

	second := Append(nil, 16384)
	_, res = d.Consume(second)
	require.Equal(t, Done, res)
	assert.Equal(t, uint64(16384), d.Value())
}

func TestDecoderStartedAndMinRemaining(t *testing.T) {
	t.Parallel()

	var d Decoder
	assert.False(t, d.Started())
	assert.Equal(t, 1, d.MinRemaining())

	// first byte of a 4-byte-class value
	n, res := d.Consume([]byte{0x80})
	assert.Equal(t, 1, n)
	assert.Equal(t, InProgress, res)
	assert.True(t, d.Started())
	assert.Equal(t, 3, d.MinRemaining())
}

func TestDecoderIgnoresExcessBytes(t *testing.T) {
	t.Parallel()

	var d Decoder
	// a 1-byte value followed by unrelated trailing bytes
	n, res := d.Consume([]byte{37, 0xff, 0xff})
	assert.Equal(t, Done, res)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(37), d.Value())
}

func TestFixedRunDecoderIncremental(t *testing.T) {
	t.Parallel()

	f := NewFixedRunDecoder(3)
	assert.Equal(t, 3, f.MinRemaining())

	n, res := f.Consume([]byte{1})
	assert.Equal(t, 1, n)
	assert.Equal(t, InProgress, res)
	assert.Equal(t, 2, f.MinRemaining())

	n, res = f.Consume([]byte{2, 3, 4})
	assert.Equal(t, 2, n)
	assert.Equal(t, Done, res)
	assert.Equal(t, []byte{1, 2, 3}, f.Bytes())
}

func TestFixedRunDecoderZeroLength(t *testing.T) {
	t.Parallel()

	f := NewFixedRunDecoder(0)
	assert.Equal(t, 0, f.MinRemaining())
}
