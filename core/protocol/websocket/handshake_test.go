package websocket

import (
	"strings"
	"testing"

	nethttp "github.com/netkit/netkit/core/protocol/http"
)

func TestAcceptKeyKnownVector(t *testing.T) {
	// The RFC6455 §1.2 worked example.
	if got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("unexpected accept key %q", got)
	}
}

func TestUpgradeResponseAccepts(t *testing.T) {
	req := &nethttp.Message{Headers: []nethttp.Header{
		{Name: "Upgrade", Value: "websocket"},
		{Name: "Connection", Value: "Upgrade"},
		{Name: "Sec-WebSocket-Key", Value: "dGhlIHNhbXBsZSBub25jZQ=="},
		{Name: "Sec-WebSocket-Version", Value: "13"},
	}}
	resp := string(UpgradeResponse(req))
	if !strings.HasPrefix(resp, "HTTP/1.1 101") {
		t.Fatalf("expected 101 response, got %q", resp)
	}
	if !strings.Contains(resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=") {
		t.Fatalf("missing accept key in %q", resp)
	}
}

func TestUpgradeResponseRejectsNonWS(t *testing.T) {
	req := &nethttp.Message{}
	resp := string(UpgradeResponse(req))
	if !strings.HasPrefix(resp, "HTTP/1.1 400") {
		t.Fatalf("expected 400 response, got %q", resp)
	}
}

func TestUpgradeRequestAndVerify(t *testing.T) {
	reqBytes, key, err := UpgradeRequest("example.com", "/chat")
	if err != nil {
		t.Fatalf("UpgradeRequest: %v", err)
	}
	if !strings.Contains(string(reqBytes), "Sec-WebSocket-Key: "+key) {
		t.Fatalf("request missing key: %q", reqBytes)
	}
	resp := &nethttp.Message{Status: 101, Headers: []nethttp.Header{
		{Name: "Sec-WebSocket-Accept", Value: AcceptKey(key)},
	}}
	if !VerifyAccept(resp, key) {
		t.Fatal("expected VerifyAccept to succeed")
	}
}

func TestVerifyAcceptRejectsWrongKey(t *testing.T) {
	resp := &nethttp.Message{Status: 101, Headers: []nethttp.Header{
		{Name: "Sec-WebSocket-Accept", Value: AcceptKey("wrong")},
	}}
	if VerifyAccept(resp, "dGhlIHNhbXBsZSBub25jZQ==") {
		t.Fatal("expected VerifyAccept to fail on mismatched key")
	}
}
