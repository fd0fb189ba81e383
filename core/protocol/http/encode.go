package http

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Reply formats a complete HTTP response — status line, Content-Length,
// extraHeaders, blank line, body — measuring the body first so
// Content-Length is always correct, the way the teacher's sendError in
// core/engine.go builds a response by hand instead of through a
// generic ResponseWriter.
func Reply(status int, extraHeaders map[string]string, body string) []byte {
	var b []byte
	b = append(b, fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, statusText(status))...)
	b = append(b, fmt.Sprintf("Content-Length: %d\r\n", len(body))...)
	for k, v := range extraHeaders {
		b = append(b, k...)
		b = append(b, ':', ' ')
		b = append(b, v...)
		b = append(b, '\r', '\n')
	}
	b = append(b, '\r', '\n')
	b = append(b, body...)
	return b
}

// Replyf is Reply with a printf-style body.
func Replyf(status int, extraHeaders map[string]string, format string, args ...any) []byte {
	return Reply(status, extraHeaders, fmt.Sprintf(format, args...))
}

// ChunkedHeader formats the status line and headers for a response that
// will be followed by one or more WriteChunk segments and a final
// zero-length chunk, instead of a Content-Length.
func ChunkedHeader(status int, extraHeaders map[string]string) []byte {
	var b []byte
	b = append(b, fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, statusText(status))...)
	b = append(b, "Transfer-Encoding: chunked\r\n"...)
	for k, v := range extraHeaders {
		b = append(b, k...)
		b = append(b, ':', ' ')
		b = append(b, v...)
		b = append(b, '\r', '\n')
	}
	b = append(b, '\r', '\n')
	return b
}

func statusText(code int) string {
	if t, ok := statusTexts[code]; ok {
		return t
	}
	return "Unknown"
}

var statusTexts = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	416: "Range Not Satisfiable",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

// Credentials holds whatever login information was found on a request,
// per spec.md §4.7's extraction order: Basic auth, then Bearer, then the
// access_token cookie, then the access_token query parameter.
type Credentials struct {
	User     string
	Password string
}

// ExtractCredentials consults m's Authorization header, Cookie header and
// query string in the order spec.md §4.7 specifies, returning the first
// match.
func ExtractCredentials(m *Message) Credentials {
	if auth, ok := m.Header("Authorization"); ok {
		if v, found := strings.CutPrefix(auth, "Basic "); found {
			if user, pass, ok := decodeBasic(v); ok {
				return Credentials{User: user, Password: pass}
			}
		}
		if v, found := strings.CutPrefix(auth, "Bearer "); found {
			return Credentials{Password: v}
		}
	}
	if cookie, ok := m.Header("Cookie"); ok {
		if tok := cookieValue(cookie, "access_token"); tok != "" {
			return Credentials{Password: tok}
		}
	}
	if tok := queryValue(m.Query, "access_token"); tok != "" {
		return Credentials{Password: tok}
	}
	return Credentials{}
}

func decodeBasic(encoded string) (user, pass string, ok bool) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	raw := string(decoded)
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		return raw[:idx], raw[idx+1:], true
	}
	return raw, "", true
}

func cookieValue(cookieHeader, name string) string {
	for _, kv := range strings.Split(cookieHeader, ";") {
		kv = strings.TrimSpace(kv)
		if k, v, found := strings.Cut(kv, "="); found && k == name {
			return v
		}
	}
	return ""
}

func queryValue(query, name string) string {
	for _, kv := range strings.Split(query, "&") {
		if k, v, found := strings.Cut(kv, "="); found && k == name {
			return v
		}
	}
	return ""
}
