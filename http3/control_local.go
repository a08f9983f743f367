package http3

import "github.com/michiboo/neqo/quicvarint"

// localControlStream owns the single outbound unidirectional stream
// reserved for control frames. The first byte ever
// queued on it is the control-stream-type varint (0x00); send_frame just
// appends onto the same buffer, so that invariant holds automatically as
// long as createAndAnnounce is called before any send_frame.
type localControlStream struct {
	streamID *uint64
	buf      []byte
}

// createAndAnnounce allocates the stream via the transport and queues the
// leading control-stream-type byte.
func (c *localControlStream) createAndAnnounce(t Transport) error {
	id, err := t.StreamCreate(UniDi)
	if err != nil {
		return err
	}
	c.streamID = &id
	c.buf = quicvarint.Append(c.buf, streamTypeControl)
	return nil
}

// sendFrame appends an encoded frame to the outbound buffer.
func (c *localControlStream) sendFrame(f Frame) {
	c.buf = append(c.buf, EncodeFrame(f)...)
}

// drain writes as much of the buffer as the transport currently accepts,
// retaining any unsent suffix for the next call.
func (c *localControlStream) drain(t Transport) error {
	if c.streamID == nil || len(c.buf) == 0 {
		return nil
	}
	n, err := t.StreamSend(*c.streamID, c.buf)
	if err != nil {
		return err
	}
	if n == len(c.buf) {
		c.buf = c.buf[:0]
	} else {
		c.buf = append(c.buf[:0], c.buf[n:]...)
	}
	return nil
}
