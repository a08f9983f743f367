package http3

// remoteControlStream owns the single inbound control stream and its
// frame reader. At most one may ever be bound; a
// second is WrongStreamCount. Its FIN is always fatal — it is critical
// for the connection's entire lifetime.
type remoteControlStream struct {
	streamID *uint64
	reader   FrameReader
	fin      bool
}

// bind claims streamID as THE remote control stream. Fails if one is
// already bound.
func (c *remoteControlStream) bind(streamID uint64) error {
	if c.streamID != nil {
		return ErrWrongStreamCount
	}
	id := streamID
	c.streamID = &id
	return nil
}

// isMine reports whether streamID is the bound control stream.
func (c *remoteControlStream) isMine(streamID uint64) bool {
	return c.streamID != nil && *c.streamID == streamID
}

// receive pumps whatever is currently readable into the frame reader,
// forwarding bytes until either a complete frame becomes available or no
// more bytes are currently readable.
func (c *remoteControlStream) receive(t Transport, streamID uint64) error {
	for {
		need := c.reader.MinRemaining()
		if need == 0 {
			return nil
		}
		buf := make([]byte, need)
		n, fin, err := t.StreamRecv(streamID, buf)
		if err != nil {
			return err
		}
		if n > 0 {
			_, ready, ferr := c.reader.Consume(buf[:n])
			if ferr != nil {
				return ferr
			}
			if ready {
				return nil
			}
		}
		if fin {
			c.fin = true
			return nil
		}
		if n == 0 {
			return nil
		}
	}
}
