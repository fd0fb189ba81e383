// Package websocket implements RFC6455 framing as a reactor-driven
// protocol handler, grounded in the teacher's core/websocket/conn.go
// (readFrame, WriteFrame, computeAcceptKey) generalized from a
// bufio.Reader-blocking Conn into a non-blocking parser operating
// directly on an iobuf.Buffer, the way the core package drives HTTP —
// and from the teacher's single TCP-only Upgrade into a handshake that
// works over the plaintext-or-TLS byte stream a Connection already
// abstracts.
package websocket

import (
	"encoding/binary"
	"math/rand"
)

// OpCode identifies a WebSocket frame's payload interpretation.
type OpCode byte

const (
	OpContinuation OpCode = 0x0
	OpText         OpCode = 0x1
	OpBinary       OpCode = 0x2
	OpClose        OpCode = 0x8
	OpPing         OpCode = 0x9
	OpPong         OpCode = 0xA
)

// Frame is one wire-level WebSocket frame.
type Frame struct {
	Fin     bool
	OpCode  OpCode
	Masked  bool
	Payload []byte // copy of the frame's payload, already unmasked
	Consumed int
}

// ParseFrame decodes one frame from the front of data, per
// original_source/src/ws.c's ws_process framing: 2-byte base header,
// optional 16/64-bit extended length, optional 4-byte masking key, then
// payload. It returns (nil, false, nil) if data doesn't yet hold a
// complete frame.
func ParseFrame(data []byte) (*Frame, bool, error) {
	if len(data) < 2 {
		return nil, false, nil
	}
	fin := data[0]&0x80 != 0
	op := OpCode(data[0] & 0x0f)
	masked := data[1]&0x80 != 0
	lenByte := int(data[1] & 0x7f)

	off := 2
	var payloadLen int
	switch lenByte {
	case 126:
		if len(data) < off+2 {
			return nil, false, nil
		}
		payloadLen = int(binary.BigEndian.Uint16(data[off:]))
		off += 2
	case 127:
		if len(data) < off+8 {
			return nil, false, nil
		}
		payloadLen = int(binary.BigEndian.Uint64(data[off:]))
		off += 8
	default:
		payloadLen = lenByte
	}

	var maskKey [4]byte
	if masked {
		if len(data) < off+4 {
			return nil, false, nil
		}
		copy(maskKey[:], data[off:off+4])
		off += 4
	}

	if len(data) < off+payloadLen {
		return nil, false, nil
	}
	payload := append([]byte(nil), data[off:off+payloadLen]...)
	if masked {
		mask(payload, maskKey)
	}

	f := &Frame{
		Fin:      fin,
		OpCode:   op,
		Masked:   masked,
		Payload:  payload,
		Consumed: off + payloadLen,
	}
	return f, true, nil
}

// mask XORs data in place with key, cycling every 4 bytes, per RFC6455
// §5.3 — the same loop the teacher's readFrame runs inline.
func mask(data []byte, key [4]byte) {
	for i := range data {
		data[i] ^= key[i%4]
	}
}

// WriteFrame appends the wire encoding of a frame carrying opcode and
// payload to dst and returns the result. masked selects client framing
// (masked, with a fresh random key) or server framing (unmasked) — per
// RFC6455 §5.1, only frames sent from client to server are masked.
func WriteFrame(dst []byte, opcode OpCode, payload []byte, fin, masked bool) []byte {
	first := byte(opcode)
	if fin {
		first |= 0x80
	}
	dst = append(dst, first)

	n := len(payload)
	var maskBit byte
	if masked {
		maskBit = 0x80
	}
	switch {
	case n < 126:
		dst = append(dst, maskBit|byte(n))
	case n < 1<<16:
		dst = append(dst, maskBit|126)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		dst = append(dst, b[:]...)
	default:
		dst = append(dst, maskBit|127)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(n))
		dst = append(dst, b[:]...)
	}

	if !masked {
		return append(dst, payload...)
	}
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], rand.Uint32())
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	mask(dst[start:], key)
	return dst
}

// Wrap returns payload encoded as a single Fin frame with the given
// opcode, masked when masked is true. It allocates a new slice holding
// header and payload; it does not touch a connection's Send buffer, so
// bytes already appended to Send are not turned into a frame in place.
// Callers pass the result to Connection.Write.
func Wrap(payload []byte, opcode OpCode, masked bool) []byte {
	return WriteFrame(nil, opcode, payload, true, masked)
}
