package http

import (
	"bytes"
	"fmt"
)

// Chunk is one decoded chunked-transfer segment.
type Chunk struct {
	Data     []byte // view into the input; empty for the final chunk
	Consumed int     // total bytes of wire format this chunk occupied
	Final    bool    // true for the zero-length terminating chunk
}

// NextChunk decodes one chunk (size line, CRLF, data, CRLF) starting at
// the beginning of data. It returns (nil, false) if data doesn't yet
// contain a complete chunk. Chunk extensions after the size (";name=val")
// are accepted and discarded, since no caller in this module needs them.
func NextChunk(data []byte) (*Chunk, bool, error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, false, nil
	}
	sizeLine := trimCR(data[:nl])
	if idx := bytes.IndexByte(sizeLine, ';'); idx >= 0 {
		sizeLine = sizeLine[:idx]
	}
	size, err := parseHexSize(sizeLine)
	if err != nil {
		return nil, false, err
	}
	headerLen := nl + 1
	need := headerLen + size + 2 // data + trailing CRLF
	if len(data) < need {
		return nil, false, nil
	}
	if data[headerLen+size] != '\r' && data[headerLen+size] != '\n' {
		return nil, false, fmt.Errorf("http: malformed chunk terminator")
	}
	c := &Chunk{
		Data:     data[headerLen : headerLen+size],
		Consumed: need,
		Final:    size == 0,
	}
	return c, true, nil
}

func parseHexSize(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("http: empty chunk size")
	}
	n := 0
	for _, c := range b {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= int(c - '0')
		case c >= 'a' && c <= 'f':
			n |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			n |= int(c-'A') + 10
		default:
			return 0, fmt.Errorf("http: invalid chunk size byte %q", c)
		}
	}
	return n, nil
}

// WriteChunk appends one chunked-transfer segment to dst and returns the
// result, in the wire format "<hex-size>\r\n<data>\r\n". A zero-length
// data closes the chunked stream.
func WriteChunk(dst []byte, data []byte) []byte {
	dst = append(dst, []byte(fmt.Sprintf("%x\r\n", len(data)))...)
	dst = append(dst, data...)
	dst = append(dst, '\r', '\n')
	return dst
}
