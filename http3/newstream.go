package http3

import "github.com/michiboo/neqo/quicvarint"

// Unidirectional stream type identifiers.
const (
	streamTypeControl      uint64 = 0x00
	streamTypePush         uint64 = 0x01
	streamTypeQPACKEncoder uint64 = 0x02
	streamTypeQPACKDecoder uint64 = 0x03
)

// newStreamTypeReader reads the single leading varint that identifies a
// freshly opened remote unidirectional stream's role.
type newStreamTypeReader struct {
	reader quicvarint.Decoder
	fin    bool
}

// typeOutcome is the three-way result of pumping bytes into a
// newStreamTypeReader.
type typeOutcome int

const (
	typePending typeOutcome = iota
	typeReady
	typeDropped
)

// getType pulls whatever the transport currently has readable on
// streamID and tries to complete the leading varint. It never blocks: a
// transport read returning 0 bytes with no FIN means "come back later".
func (r *newStreamTypeReader) getType(t Transport, streamID uint64) (uint64, typeOutcome) {
	for {
		need := r.reader.MinRemaining()
		buf := make([]byte, need)
		n, fin, err := t.StreamRecv(streamID, buf)
		if err != nil {
			r.fin = true
			return 0, typeDropped
		}
		if n == 0 {
			if fin {
				r.fin = true
				return 0, typeDropped
			}
			return 0, typePending
		}
		_, res := r.reader.Consume(buf[:n])
		if res == quicvarint.Done {
			return r.reader.Value(), typeReady
		}
		if fin {
			r.fin = true
			return 0, typeDropped
		}
	}
}
