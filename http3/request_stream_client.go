package http3

// requestStreamClient is per-request client-side state:
// outbound buffered header block, inbound frame parser producing HEADERS
// then DATA events, and blocked-on-QPACK signaling.
type requestStreamClient struct {
	streamID uint64

	headersEncoded  bool
	sendBuf         []byte
	sendClosed      bool

	reader          FrameReader
	gotHeaders      bool
	blockedOnQPACK  bool
	pendingHeaders  []byte // header block awaiting an unblock, if ever blocked
	responseHeaders []HeaderField
	bodyBuf         []byte
	finReceived     bool

	events *eventQueue
}

func newRequestStreamClient(streamID uint64, method, scheme, host, path string, headers []HeaderField, events *eventQueue) *requestStreamClient {
	fields := make([]HeaderField, 0, len(headers)+4)
	fields = append(fields,
		HeaderField{Name: ":method", Value: method},
		HeaderField{Name: ":scheme", Value: scheme},
		HeaderField{Name: ":authority", Value: host},
		HeaderField{Name: ":path", Value: path},
	)
	fields = append(fields, headers...)
	return &requestStreamClient{
		streamID: streamID,
		sendBuf:  encodeHeaderBlock(fields),
		events:   events,
	}
}

// hasDataToSend reports whether bytes remain buffered for this stream or
// its send side has not been closed yet.
func (s *requestStreamClient) hasDataToSend() bool {
	return len(s.sendBuf) > 0 || !s.sendClosed
}

// send drains the buffered HEADERS frame into the transport and, once
// fully drained, half-closes the send side: client requests in this
// profile never carry a request body (fetch takes no body parameter),
// so HEADERS is the entire request.
func (s *requestStreamClient) send(t Transport) error {
	if !s.headersEncoded {
		s.sendBuf = EncodeFrame(&HeadersFrame{HeaderBlock: s.sendBuf})
		s.headersEncoded = true
	}
	if len(s.sendBuf) > 0 {
		n, err := t.StreamSend(s.streamID, s.sendBuf)
		if err != nil {
			return err
		}
		if n == len(s.sendBuf) {
			s.sendBuf = s.sendBuf[:0]
		} else {
			s.sendBuf = append(s.sendBuf[:0], s.sendBuf[n:]...)
		}
	}
	if len(s.sendBuf) == 0 && !s.sendClosed {
		t.StreamCloseSend(s.streamID)
		s.sendClosed = true
	}
	return nil
}

// receive pulls available bytes from the transport and feeds the frame
// parser, translating completed frames into protocol events. It loops until the transport reports no more readable bytes or
// a FIN, draining every frame that becomes completable along the way.
func (s *requestStreamClient) receive(t Transport) error {
	buf := make([]byte, 4096)
	for {
		n, fin, err := t.StreamRecv(s.streamID, buf)
		if err != nil {
			return err
		}
		if err := s.feed(buf[:n]); err != nil {
			return err
		}
		if fin {
			s.finReceived = true
			if !s.reader.AtBoundary() {
				return s.reader.FinWhileIncomplete()
			}
			s.events.dataReadable(s.streamID)
			return nil
		}
		if n == 0 {
			return nil
		}
	}
}

// feed consumes every byte of b, handling each frame as it completes.
func (s *requestStreamClient) feed(b []byte) error {
	for len(b) > 0 {
		n, ready, err := s.reader.Consume(b)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		b = b[n:]
		if ready {
			if err := s.handleFrame(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *requestStreamClient) handleFrame() error {
	f := s.reader.GetFrame()
	switch fr := f.(type) {
	case *HeadersFrame:
		if s.gotHeaders {
			return ErrWrongStream
		}
		return s.decodeHeaders(fr.HeaderBlock)
	case *DataFrame:
		if !s.gotHeaders {
			return ErrWrongStream
		}
		s.bodyBuf = append(s.bodyBuf, fr.Payload...)
		s.events.dataReadable(s.streamID)
		return nil
	case *PriorityFrame:
		return ErrUnexpectedFrame
	case *SettingsFrame, *GoawayFrame, *MaxPushIDFrame, *CancelPushFrame, *DuplicatePushFrame:
		return ErrWrongStream
	default:
		return ErrWrongStream
	}
}

func (s *requestStreamClient) decodeHeaders(block []byte) error {
	fields, err := decodeFull(block)
	if err != nil {
		// In this static-table-only profile a decode failure can only mean
		// a malformed block, never a pending dynamic-table dependency.
		s.blockedOnQPACK = false
		return ErrGeneralProtocolError
	}
	s.gotHeaders = true
	s.responseHeaders = fields
	s.events.headerReady(s.streamID)
	return nil
}

// unblock re-attempts decoding a header block that was previously blocked
// on QPACK dynamic-table entries. Always a no-op in this profile since
// decodeHeaders never defers (see qpack.go), kept for interface symmetry
// with a future dynamic-table-capable QPACK encoder.
func (s *requestStreamClient) unblock() error {
	if !s.blockedOnQPACK {
		return nil
	}
	block := s.pendingHeaders
	s.pendingHeaders = nil
	s.blockedOnQPACK = false
	return s.decodeHeaders(block)
}

// getHeaders returns the decoded response headers, if any have arrived
// yet.
func (s *requestStreamClient) getHeaders() []HeaderField {
	if !s.gotHeaders {
		return nil
	}
	return s.responseHeaders
}

// readData copies buffered body bytes into out, reporting fin once all
// body bytes have been drained and the stream's FIN has been observed.
func (s *requestStreamClient) readData(out []byte) (n int, fin bool) {
	n = copy(out, s.bodyBuf)
	s.bodyBuf = s.bodyBuf[n:]
	fin = len(s.bodyBuf) == 0 && s.finReceived
	return n, fin
}

// done reports whether this stream's lifecycle is complete: response
// fully received and fully drained by the application.
func (s *requestStreamClient) done() bool {
	return s.finReceived && len(s.bodyBuf) == 0
}
