// Package protocol implements the binary frame layout used on the wire.
//
// A fixed-size 14-byte header precedes a variable-length body. The receiver
// reads the header first to learn the body length, then reads exactly that
// many bytes.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ rpc  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic bytes "rpc" reject connections that do not speak this protocol.
const (
	MagicNumber byte = 0x72 // 'r'
	MagicByte2  byte = 0x70 // 'p'
	MagicByte3  byte = 0x63 // 'c'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodyLen bounds the allocation a single frame can force on a reader.
	MaxBodyLen uint32 = 16 << 20
)

// MsgType distinguishes the frames a connection carries.
type MsgType byte

const (
	MsgTypeRequest      MsgType = 0 // Client → Server call expecting a response
	MsgTypeResponse     MsgType = 1 // Server → Client outcome, same Seq as the request
	MsgTypeHeartbeat    MsgType = 2 // KeepAlive probe (no body)
	MsgTypeNotification MsgType = 3 // Client → Server call with no response
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeResponse:
		return "response"
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeNotification:
		return "notification"
	}
	return "unknown"
}

// Codec type constants, mirrored from the codec package to avoid an import cycle.
const (
	CodecTypeJSON byte = 0
	CodecTypeCBOR byte = 1
)

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic number")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnsupportedCodec   = errors.New("protocol: unsupported codec type")
	ErrUnsupportedMsgType = errors.New("protocol: unsupported message type")
	ErrBodyTooLarge       = errors.New("protocol: body too large")
)

// Header is the fixed 14-byte frame header.
type Header struct {
	CodecType byte    // Serialization format: 0=JSON, 1=CBOR
	MsgType   MsgType // Request, Response, Heartbeat or Notification
	Seq       uint32  // Matches a response to its request; unused for notifications
	BodyLen   uint32
}

// Encode writes a complete frame to w. Callers sharing w between goroutines
// must serialize calls, or frames interleave.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) > MaxBodyLen {
		return errors.Wrapf(ErrBodyTooLarge, "%d bytes", len(body))
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(body)))

	// One write per frame keeps header and body together on the stream.
	buf = append(buf, body...)
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "protocol: write frame")
	}
	return nil
}

// Decode reads a complete frame from r, validating every header field.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, errors.Wrapf(ErrInvalidMagic, "%x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, errors.Wrapf(ErrUnsupportedVersion, "%d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeCBOR {
		return nil, nil, errors.Wrapf(ErrUnsupportedCodec, "%d", headerBuf[4])
	}

	msgType := MsgType(headerBuf[5])
	switch msgType {
	case MsgTypeRequest, MsgTypeResponse, MsgTypeHeartbeat, MsgTypeNotification:
	default:
		return nil, nil, errors.Wrapf(ErrUnsupportedMsgType, "%d", headerBuf[5])
	}

	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > MaxBodyLen {
		return nil, nil, errors.Wrapf(ErrBodyTooLarge, "%d bytes", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
