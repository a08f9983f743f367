package http3

import "fmt"

// Error is the closed taxonomy of HTTP/3 protocol errors. Each carries a
// wire error code and a flag saying whether it can be isolated to a
// single stream (STOP_SENDING) or is connection-fatal.
type Error struct {
	kind      errKind
	frameType FrameType // only meaningful for MalformedFrame
}

type errKind int

const (
	errHTTPNoError errKind = iota
	errWrongSettingsDirection
	errPushRefused
	errInternalError
	errPushAlreadyInCache
	errRequestCancelled
	errIncompleteRequest
	errConnectError
	errExcessiveLoad
	errVersionFallback
	errWrongStream
	errLimitExceeded
	errDuplicatePush
	errUnknownStreamType
	errWrongStreamCount
	errClosedCriticalStream
	errWrongStreamDirection
	errEarlyResponse
	errMissingSettings
	errUnexpectedFrame
	errRequestRejected
	errMalformedFrame
	errGeneralProtocolError
)

// The well-known errors, each a distinct *Error package variable.
// MalformedFrame carries a frame type, so it is built by the
// ErrMalformedFrame function instead.
var (
	ErrHTTPNoError          = &Error{kind: errHTTPNoError}
	ErrWrongSettingsDir     = &Error{kind: errWrongSettingsDirection}
	ErrPushRefused          = &Error{kind: errPushRefused}
	ErrInternalError        = &Error{kind: errInternalError}
	ErrPushAlreadyInCache   = &Error{kind: errPushAlreadyInCache}
	ErrRequestCancelled     = &Error{kind: errRequestCancelled}
	ErrIncompleteRequest    = &Error{kind: errIncompleteRequest}
	ErrConnectError         = &Error{kind: errConnectError}
	ErrExcessiveLoad        = &Error{kind: errExcessiveLoad}
	ErrVersionFallback      = &Error{kind: errVersionFallback}
	ErrWrongStream          = &Error{kind: errWrongStream}
	ErrLimitExceeded        = &Error{kind: errLimitExceeded}
	ErrDuplicatePush        = &Error{kind: errDuplicatePush}
	ErrUnknownStreamType    = &Error{kind: errUnknownStreamType}
	ErrWrongStreamCount     = &Error{kind: errWrongStreamCount}
	ErrClosedCriticalStream = &Error{kind: errClosedCriticalStream}
	ErrWrongStreamDirection = &Error{kind: errWrongStreamDirection}
	ErrEarlyResponse        = &Error{kind: errEarlyResponse}
	ErrMissingSettings      = &Error{kind: errMissingSettings}
	ErrUnexpectedFrame      = &Error{kind: errUnexpectedFrame}
	ErrRequestRejected      = &Error{kind: errRequestRejected}
	ErrGeneralProtocolError = &Error{kind: errGeneralProtocolError}
)

// ErrMalformedFrame builds a MalformedFrame error carrying the frame type
// that was being parsed when the stream's FIN arrived prematurely (or
// 0xff when the type itself hadn't been determined yet).
func ErrMalformedFrame(ft FrameType) *Error {
	return &Error{kind: errMalformedFrame, frameType: ft}
}

// unknownFrameTypeSentinel is used in MalformedFrame when the frame type
// byte itself had not finished arriving.
const unknownFrameTypeSentinel FrameType = 0xff

func (e *Error) Error() string {
	switch e.kind {
	case errHTTPNoError:
		return "HTTP_NO_ERROR"
	case errWrongSettingsDirection:
		return "HTTP_WRONG_SETTINGS_DIRECTION"
	case errPushRefused:
		return "HTTP_PUSH_REFUSED"
	case errInternalError:
		return "HTTP_INTERNAL_ERROR"
	case errPushAlreadyInCache:
		return "HTTP_PUSH_ALREADY_IN_CACHE"
	case errRequestCancelled:
		return "HTTP_REQUEST_CANCELLED"
	case errIncompleteRequest:
		return "HTTP_INCOMPLETE_REQUEST"
	case errConnectError:
		return "HTTP_CONNECT_ERROR"
	case errExcessiveLoad:
		return "HTTP_EXCESSIVE_LOAD"
	case errVersionFallback:
		return "HTTP_VERSION_FALLBACK"
	case errWrongStream:
		return "HTTP_WRONG_STREAM"
	case errLimitExceeded:
		return "HTTP_LIMIT_EXCEEDED"
	case errDuplicatePush:
		return "HTTP_DUPLICATE_PUSH"
	case errUnknownStreamType:
		return "HTTP_UNKNOWN_STREAM_TYPE"
	case errWrongStreamCount:
		return "HTTP_WRONG_STREAM_COUNT"
	case errClosedCriticalStream:
		return "HTTP_CLOSED_CRITICAL_STREAM"
	case errWrongStreamDirection:
		return "HTTP_WRONG_STREAM_DIRECTION"
	case errEarlyResponse:
		return "HTTP_EARLY_RESPONSE"
	case errMissingSettings:
		return "HTTP_MISSING_SETTINGS"
	case errUnexpectedFrame:
		return "HTTP_UNEXPECTED_FRAME"
	case errRequestRejected:
		return "HTTP_REQUEST_REJECTED"
	case errMalformedFrame:
		return fmt.Sprintf("HTTP_MALFORMED_FRAME(type=%#x)", uint64(e.frameType))
	case errGeneralProtocolError:
		return "HTTP_GENERAL_PROTOCOL_ERROR"
	default:
		return "HTTP_UNKNOWN_ERROR"
	}
}

// Code returns the wire error code for this error, following the HTTP/3
// error code registry (RFC 9114 §8.1).
func (e *Error) Code() uint64 {
	switch e.kind {
	case errHTTPNoError:
		return 0x0100
	case errGeneralProtocolError:
		return 0x0101
	case errInternalError:
		return 0x0102
	case errWrongStreamCount, errUnknownStreamType: // stream creation error
		return 0x0103
	case errClosedCriticalStream:
		return 0x0104
	case errUnexpectedFrame, errWrongStream: // frame unexpected
		return 0x0105
	case errMalformedFrame: // frame error
		return 0x0106
	case errExcessiveLoad:
		return 0x0107
	case errWrongStreamDirection: // id error
		return 0x0108
	case errWrongSettingsDirection: // settings error
		return 0x0109
	case errMissingSettings:
		return 0x010a
	case errRequestRejected:
		return 0x010b
	case errRequestCancelled:
		return 0x010c
	case errIncompleteRequest:
		return 0x010d
	case errEarlyResponse: // message error
		return 0x010e
	case errConnectError:
		return 0x010f
	case errVersionFallback:
		return 0x0110
	case errLimitExceeded: // qpack decompression failed
		return 0x0200
	case errPushRefused, errPushAlreadyInCache, errDuplicatePush:
		return 0x0101
	default:
		return 0x0101
	}
}

// IsStreamError reports whether this error can be resolved by resetting a
// single stream (STOP_SENDING) rather than closing the whole connection.
func (e *Error) IsStreamError() bool {
	switch e.kind {
	case errWrongStream, errRequestCancelled,
		errIncompleteRequest, errEarlyResponse, errRequestRejected,
		errPushRefused, errLimitExceeded:
		return true
	default:
		return false
	}
}

// FrameType returns the carried frame type for a MalformedFrame error, or
// 0 for any other kind.
func (e *Error) FrameType() FrameType {
	return e.frameType
}
