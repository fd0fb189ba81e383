// Package rpcframe layers a framed RPC tunnel on top of a Connection, the
// same way protocol/http, protocol/websocket and protocol/mqtt each turn
// raw Recv bytes into a synthesized event. The 16-byte frame header and
// its field layout are the teacher's core/rpc/protocol/frame.go, kept
// unchanged in shape.
//
// Frame format (16-byte header + variable metadata + payload):
//
//	+--------+-----+------+-------+------+-----------------------+
//	| Magic (4)    | Ver | Type | Flags | Rsvd | RequestID (4)   |
//	+--------+-----+------+-------+------+-----------------------+
//	| MetaLen (2)  | PayloadLen (2)                               |
//	+--------------+----------------------------------------------+
//	| Metadata (variable) | Payload (variable)                    |
//	+----------------------+----------------------------------------+
package rpcframe

import (
	"encoding/binary"
	"errors"
)

const (
	// Magic identifies an rpcframe frame: "RPC\0".
	Magic uint32 = 0x52504300

	// Version is the only protocol version this package speaks.
	Version byte = 0x01

	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 16
)

// Frame types.
const (
	TypeRequest     byte = 0x01
	TypeResponse    byte = 0x02
	TypeStreamOpen  byte = 0x03
	TypeStreamChunk byte = 0x04
	TypeStreamClose byte = 0x05
	TypeError       byte = 0x06
	TypePing        byte = 0x07
	TypePong        byte = 0x08
)

// Frame flags.
const (
	FlagCompressed byte = 1 << 0
	FlagPriority   byte = 1 << 1
	FlagOneWay     byte = 1 << 2
)

var (
	ErrInvalidMagic   = errors.New("rpcframe: invalid magic number")
	ErrInvalidVersion = errors.New("rpcframe: unsupported protocol version")
)

// Frame is one complete rpcframe message.
type Frame struct {
	Type      byte
	Flags     byte
	Reserved  byte
	RequestID uint32
	Metadata  []byte
	Payload   []byte
}

// New creates a request/response frame of the given type.
func New(typ byte, requestID uint32) *Frame {
	return &Frame{Type: typ, RequestID: requestID}
}

func (f *Frame) SetFlag(flag byte)      { f.Flags |= flag }
func (f *Frame) HasFlag(flag byte) bool { return f.Flags&flag != 0 }

// Encode serializes f to its wire form.
func (f *Frame) Encode() []byte {
	metaLen := len(f.Metadata)
	payloadLen := len(f.Payload)
	buf := make([]byte, HeaderSize+metaLen+payloadLen)

	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = Version
	buf[5] = f.Type
	buf[6] = f.Flags
	buf[7] = f.Reserved
	binary.BigEndian.PutUint32(buf[8:12], f.RequestID)
	binary.BigEndian.PutUint16(buf[12:14], uint16(metaLen))
	binary.BigEndian.PutUint16(buf[14:16], uint16(payloadLen))

	if metaLen > 0 {
		copy(buf[HeaderSize:], f.Metadata)
	}
	if payloadLen > 0 {
		copy(buf[HeaderSize+metaLen:], f.Payload)
	}
	return buf
}

// frameSize returns the total size of the frame described by a buffered
// header, or 0 if header isn't fully buffered yet.
func frameSize(header []byte) (int, error) {
	if len(header) < HeaderSize {
		return 0, nil
	}
	if binary.BigEndian.Uint32(header[0:4]) != Magic {
		return 0, ErrInvalidMagic
	}
	if header[4] != Version {
		return 0, ErrInvalidVersion
	}
	metaLen := int(binary.BigEndian.Uint16(header[12:14]))
	payloadLen := int(binary.BigEndian.Uint16(header[14:16]))
	return HeaderSize + metaLen + payloadLen, nil
}

// Decode parses one complete frame from buf, which must hold at least as
// many bytes as frameSize(buf) reports. Decode copies Metadata/Payload out
// of buf so the returned Frame outlives a Recv.Delete of those bytes.
func Decode(buf []byte) (*Frame, int, error) {
	total, err := frameSize(buf)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 || len(buf) < total {
		return nil, 0, nil
	}

	metaLen := int(binary.BigEndian.Uint16(buf[12:14]))
	payloadLen := int(binary.BigEndian.Uint16(buf[14:16]))

	f := &Frame{
		Type:      buf[5],
		Flags:     buf[6],
		Reserved:  buf[7],
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
	}
	if metaLen > 0 {
		f.Metadata = append([]byte(nil), buf[HeaderSize:HeaderSize+metaLen]...)
	}
	if payloadLen > 0 {
		f.Payload = append([]byte(nil), buf[HeaderSize+metaLen:HeaderSize+metaLen+payloadLen]...)
	}
	return f, total, nil
}

// Size reports the total wire size of a frame given metadata/payload
// lengths, mainly useful for pre-sizing a send buffer.
func Size(metaLen, payloadLen int) int {
	return HeaderSize + metaLen + payloadLen
}
