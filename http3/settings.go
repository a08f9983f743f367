package http3

import "math"

// Settings holds SETTINGS values. MaxHeaderListSize and NumPlaceholders
// are filled in from the peer's SETTINGS frame; MaxTableSize and
// BlockedStreams hold this endpoint's own QPACK limits from
// ConnectionConfig. defaultSettings gives the values in force before any
// SETTINGS frame arrives.
type Settings struct {
	MaxHeaderListSize uint64 // default: unbounded
	NumPlaceholders   uint64 // default 0, client-only receive
	MaxTableSize      uint32
	BlockedStreams    uint16
}

func defaultSettings() Settings {
	return Settings{
		MaxHeaderListSize: math.MaxUint64,
		NumPlaceholders:   0,
	}
}
