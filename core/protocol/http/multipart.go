package http

import (
	"bytes"
	"fmt"
	"strings"
)

// Part is one streamed multipart/form-data segment; Name, Filename and
// Data are all views into the body passed to NextMultipart.
type Part struct {
	Name     string
	Filename string
	Data     []byte
}

// BoundaryFromContentType recovers the multipart boundary from a
// Content-Type header value such as
// "multipart/form-data; boundary=----X".
func BoundaryFromContentType(contentType string) (string, error) {
	for _, field := range strings.Split(contentType, ";") {
		field = strings.TrimSpace(field)
		if v, ok := strings.CutPrefix(field, "boundary="); ok {
			return strings.Trim(v, `"`), nil
		}
	}
	return "", fmt.Errorf("http: no boundary in Content-Type %q", contentType)
}

// NextMultipart streams one part out of body starting at offset, given
// boundary (without its leading "--"). It returns the part and the
// offset to resume from for the next call, or ok=false once the closing
// boundary ("--boundary--") has been consumed.
func NextMultipart(body []byte, offset int, boundary string) (part *Part, nextOffset int, ok bool, err error) {
	delim := []byte("--" + boundary)
	rest := body[offset:]

	start := bytes.Index(rest, delim)
	if start < 0 {
		return nil, offset, false, fmt.Errorf("http: boundary not found")
	}
	afterDelim := rest[start+len(delim):]
	if bytes.HasPrefix(afterDelim, []byte("--")) {
		return nil, offset + start + len(delim) + 2, false, nil
	}
	afterDelim = bytes.TrimPrefix(afterDelim, []byte("\r\n"))
	afterDelim = bytes.TrimPrefix(afterDelim, []byte("\n"))

	headerEnd := bytes.Index(afterDelim, []byte("\r\n\r\n"))
	sep := 4
	if headerEnd < 0 {
		headerEnd = bytes.Index(afterDelim, []byte("\n\n"))
		sep = 2
		if headerEnd < 0 {
			return nil, offset, false, fmt.Errorf("http: malformed part headers")
		}
	}
	headerBlock := afterDelim[:headerEnd]
	p := &Part{}
	for _, line := range bytes.Split(headerBlock, []byte("\n")) {
		line = trimCR(line)
		if name, filename, ok := parseContentDisposition(line); ok {
			p.Name, p.Filename = name, filename
		}
	}

	dataStart := headerEnd + sep
	nextDelimIdx := bytes.Index(afterDelim[dataStart:], []byte("--"+boundary))
	if nextDelimIdx < 0 {
		return nil, offset, false, fmt.Errorf("http: unterminated part")
	}
	partData := afterDelim[dataStart : dataStart+nextDelimIdx]
	partData = bytes.TrimSuffix(partData, []byte("\r\n"))
	partData = bytes.TrimSuffix(partData, []byte("\n"))
	p.Data = partData

	nextOffset = offset + start + len(delim) + len(afterDelim[:dataStart+nextDelimIdx])
	return p, nextOffset, true, nil
}

func parseContentDisposition(line []byte) (name, filename string, ok bool) {
	s := string(line)
	colon := strings.IndexByte(s, ':')
	if colon < 0 || !strings.EqualFold(strings.TrimSpace(s[:colon]), "Content-Disposition") {
		return "", "", false
	}
	for _, field := range strings.Split(s[colon+1:], ";") {
		field = strings.TrimSpace(field)
		if v, found := strings.CutPrefix(field, `name="`); found {
			name = strings.TrimSuffix(v, `"`)
		} else if v, found := strings.CutPrefix(field, `filename="`); found {
			filename = strings.TrimSuffix(v, `"`)
		}
	}
	return name, filename, true
}
