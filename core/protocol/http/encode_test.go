package http

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestReplyFormatsContentLength(t *testing.T) {
	out := string(Reply(200, map[string]string{"X-Test": "1"}, "hi"))
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("unexpected status line: %q", out)
	}
	if !strings.Contains(out, "Content-Length: 2\r\n") {
		t.Fatalf("expected Content-Length: 2, got %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\nhi") {
		t.Fatalf("expected body after blank line, got %q", out)
	}
}

func TestReplyfFormatsBody(t *testing.T) {
	out := string(Replyf(404, nil, "no such item: %d", 42))
	if !strings.Contains(out, "no such item: 42") {
		t.Fatalf("unexpected body in %q", out)
	}
}

func TestChunkedHeaderNoContentLength(t *testing.T) {
	out := string(ChunkedHeader(200, nil))
	if strings.Contains(out, "Content-Length") {
		t.Fatalf("chunked header should not set Content-Length: %q", out)
	}
	if !strings.Contains(out, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("expected Transfer-Encoding header, got %q", out)
	}
}

func TestExtractCredentialsBasic(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
	m := &Message{Headers: []Header{{Name: "Authorization", Value: "Basic " + encoded}}}
	creds := ExtractCredentials(m)
	if creds.User != "alice" || creds.Password != "s3cret" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestExtractCredentialsBearer(t *testing.T) {
	m := &Message{Headers: []Header{{Name: "Authorization", Value: "Bearer tok123"}}}
	creds := ExtractCredentials(m)
	if creds.Password != "tok123" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestExtractCredentialsCookie(t *testing.T) {
	m := &Message{Headers: []Header{{Name: "Cookie", Value: "a=1; access_token=cookietok; b=2"}}}
	creds := ExtractCredentials(m)
	if creds.Password != "cookietok" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestExtractCredentialsQuery(t *testing.T) {
	m := &Message{Query: "access_token=querytok"}
	creds := ExtractCredentials(m)
	if creds.Password != "querytok" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestExtractCredentialsNone(t *testing.T) {
	m := &Message{}
	if creds := ExtractCredentials(m); creds.User != "" || creds.Password != "" {
		t.Fatalf("expected empty credentials, got %+v", creds)
	}
}
