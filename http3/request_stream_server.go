package http3

// ServerHandler is the single capability a server-role Connection needs:
// given the decoded request headers, produce response headers and a
// complete response body. It must be safe to call many times (once per
// request) and should not retain references into connection state
//. Responses are synchronous and
// one-shot: no streaming bodies, no trailers.
type ServerHandler interface {
	OnRequest(headers []HeaderField, fin bool) (responseHeaders []HeaderField, body []byte)
}

// requestStreamServer is per-request server-side state.
type requestStreamServer struct {
	streamID uint64

	reader          FrameReader
	gotHeaders      bool
	requestHeaders  []HeaderField
	requestDone     bool
	finReceived     bool

	responseReady bool
	sendBuf       []byte
	sendClosed    bool
}

func newRequestStreamServer(streamID uint64) *requestStreamServer {
	return &requestStreamServer{streamID: streamID}
}

// receive mirrors requestStreamClient.receive, but produces no
// application-facing events — the server side is driven synchronously by
// the connection invoking the handler once the request is fully read.
func (s *requestStreamServer) receive(t Transport) error {
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
			if s.gotHeaders {
				s.requestDone = true
			}
			return nil
		}
		if n == 0 {
			return nil
		}
	}
}

func (s *requestStreamServer) feed(b []byte) error {
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

func (s *requestStreamServer) handleFrame() error {
	f := s.reader.GetFrame()
	switch fr := f.(type) {
	case *HeadersFrame:
		if s.gotHeaders {
			return ErrWrongStream
		}
		fields, err := decodeFull(fr.HeaderBlock)
		if err != nil {
			return ErrGeneralProtocolError
		}
		s.gotHeaders = true
		s.requestHeaders = fields
		return nil
	case *DataFrame:
		if !s.gotHeaders {
			return ErrWrongStream
		}
		// Request bodies are read but not surfaced to the handler in
		// this profile.
		return nil
	case *PriorityFrame:
		return nil // PRIORITY is accepted and ignored
	case *SettingsFrame, *GoawayFrame, *MaxPushIDFrame, *CancelPushFrame, *DuplicatePushFrame:
		return ErrWrongStream
	default:
		return ErrWrongStream
	}
}

// doneReadingRequest reports whether the handler should now be invoked.
func (s *requestStreamServer) doneReadingRequest() bool {
	return s.requestDone && !s.responseReady
}

func (s *requestStreamServer) getRequestHeaders() []HeaderField {
	return s.requestHeaders
}

// setResponse encodes a HEADERS frame followed by a single DATA frame
// into the send buffer. The
// handler is always invoked with fin=false; callers should not rely on
// it reflecting whether the request body has actually finished arriving.
func (s *requestStreamServer) setResponse(headers []HeaderField, body []byte) {
	block := encodeHeaderBlock(headers)
	s.sendBuf = append(s.sendBuf, EncodeFrame(&HeadersFrame{HeaderBlock: block})...)
	s.sendBuf = append(s.sendBuf, EncodeFrame(&DataFrame{Payload: body})...)
	s.responseReady = true
}

func (s *requestStreamServer) hasDataToSend() bool {
	return len(s.sendBuf) > 0 || (s.responseReady && !s.sendClosed)
}

func (s *requestStreamServer) send(t Transport) error {
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
	if s.responseReady && len(s.sendBuf) == 0 && !s.sendClosed {
		t.StreamCloseSend(s.streamID)
		s.sendClosed = true
	}
	return nil
}

func (s *requestStreamServer) done() bool {
	return s.responseReady && len(s.sendBuf) == 0 && s.sendClosed
}
