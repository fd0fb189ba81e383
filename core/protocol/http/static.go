package http

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

// FS is the pluggable filesystem interface static serving is built on,
// per spec.md §4.7's "serve_dir/serve_file use a pluggable filesystem
// interface". A real deployment backs this with os.* calls; tests back
// it with an in-memory map.
type FS interface {
	Stat(name string) (FileInfo, error)
	Open(name string) (File, error)
	List(dir string) ([]FileInfo, error)
}

// FileInfo is the subset of os.FileInfo static serving needs.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// File is the subset of *os.File static serving needs; io.ReaderAt lets
// ServeFile satisfy a Range request without reading the whole file.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// mimeByExt is the built-in extension-to-MIME-type map spec.md §4.7
// calls for, grounded in the teacher's sendfile.GetContentType, which
// used the same switch-on-extension approach instead of the stdlib
// mime package.
var mimeByExt = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".xml":  "application/xml; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".wasm": "application/wasm",
}

const defaultMIME = "application/octet-stream"

// textLikeExt holds extensions mimeByExt doesn't cover but that are
// plausibly text, served as text/plain with a canonical charset label
// rather than as an opaque octet-stream.
var textLikeExt = map[string]bool{
	".md": true, ".markdown": true, ".csv": true, ".log": true,
	".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".conf": true,
}

// textCharsetLabel is the canonical name x/text/encoding/htmlindex assigns
// to "utf-8", used for text/plain fallbacks below so the charset parameter
// comes from the same label-canonicalization logic a real HTML5 charset
// sniffer would use, rather than a bare hardcoded string.
var textCharsetLabel = resolveCharsetLabel()

func resolveCharsetLabel() string {
	enc, err := htmlindex.Get("utf-8")
	if err != nil {
		return "utf-8"
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return "utf-8"
	}
	return name
}

// ContentType returns the MIME type for name by extension, consulting
// overrides first.
func ContentType(name string, overrides map[string]string) string {
	ext := strings.ToLower(path.Ext(name))
	if overrides != nil {
		if t, ok := overrides[ext]; ok {
			return t
		}
	}
	if t, ok := mimeByExt[ext]; ok {
		return t
	}
	if textLikeExt[ext] {
		return "text/plain; charset=" + textCharsetLabel
	}
	return defaultMIME
}

// ETag computes the weak ETag spec.md §4.7 specifies: derived from size
// and mtime, not file contents, so it costs nothing to compute per
// request.
func ETag(info FileInfo) string {
	return fmt.Sprintf(`W/"%x-%x"`, info.Size, info.ModTime.Unix())
}

// ServeFileOptions configures ServeFile beyond the bare name.
type ServeFileOptions struct {
	MIMEOverrides map[string]string
	ExtraHeaders  map[string]string
}

// ServeFile answers req by reading name from fs, honoring If-None-Match,
// and a single Range: bytes=a-b request with a 206 and Content-Range. It
// returns the full response (headers and, for 200 and 206 replies, the
// body read into memory) to append to a connection's Send buffer.
func ServeFile(fs FS, name string, req *Message, opts ServeFileOptions) ([]byte, error) {
	info, err := fs.Stat(name)
	if err != nil {
		return Reply(404, nil, "Not Found"), nil
	}
	tag := ETag(info)
	headers := map[string]string{
		"Content-Type": ContentType(name, opts.MIMEOverrides),
		"ETag":         tag,
		"Last-Modified": info.ModTime.UTC().Format(time.RFC1123),
	}
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}

	if inm, ok := req.Header("If-None-Match"); ok && inm == tag {
		return replyNoBody(304, headers), nil
	}

	f, err := fs.Open(name)
	if err != nil {
		return Reply(500, nil, "Internal Server Error"), nil
	}
	defer f.Close()

	if rangeHdr, ok := req.Header("Range"); ok {
		start, end, ok := parseRange(rangeHdr, info.Size)
		if !ok {
			headers["Content-Range"] = fmt.Sprintf("bytes */%d", info.Size)
			return replyNoBody(416, headers), nil
		}
		n := end - start + 1
		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
			return Reply(500, nil, "Internal Server Error"), nil
		}
		headers["Content-Range"] = fmt.Sprintf("bytes %d-%d/%d", start, end, info.Size)
		return responseWithBody(206, headers, buf), nil
	}

	buf := make([]byte, info.Size)
	if _, err := io.ReadFull(f, buf); err != nil && err != io.EOF {
		return Reply(500, nil, "Internal Server Error"), nil
	}
	return responseWithBody(200, headers, buf), nil
}

// ServeDir lists dir's entries as a minimal HTML index, or delegates to
// ServeFile if uri names a regular file within dir.
func ServeDir(fs FS, dir, uri string, req *Message, opts ServeFileOptions) ([]byte, error) {
	full := path.Join(dir, path.Clean("/"+uri))
	info, err := fs.Stat(full)
	if err != nil {
		return Reply(404, nil, "Not Found"), nil
	}
	if !info.IsDir {
		return ServeFile(fs, full, req, opts)
	}
	entries, err := fs.List(full)
	if err != nil {
		return Reply(500, nil, "Internal Server Error"), nil
	}
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, e := range entries {
		name := e.Name
		if e.IsDir {
			name += "/"
		}
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", name, name)
	}
	b.WriteString("</ul></body></html>")
	return Reply(200, map[string]string{"Content-Type": "text/html; charset=utf-8"}, b.String()), nil
}

func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	a, b, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}
	if a == "" {
		n, err := strconv.ParseInt(b, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}
	start, err := strconv.ParseInt(a, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	if b == "" {
		return start, size - 1, true
	}
	end, err = strconv.ParseInt(b, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	if end >= size {
		end = size - 1
	}
	return start, end, true
}

func replyNoBody(status int, headers map[string]string) []byte {
	var b []byte
	b = append(b, fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, statusText(status))...)
	for k, v := range headers {
		b = append(b, k...)
		b = append(b, ':', ' ')
		b = append(b, v...)
		b = append(b, '\r', '\n')
	}
	b = append(b, '\r', '\n')
	return b
}

func responseWithBody(status int, headers map[string]string, body []byte) []byte {
	headers["Content-Length"] = strconv.Itoa(len(body))
	b := replyNoBody(status, headers)
	return append(b, body...)
}
