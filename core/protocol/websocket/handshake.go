package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	nethttp "github.com/netkit/netkit/core/protocol/http"
)

const magicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a client's
// Sec-WebSocket-Key, exactly as the teacher's computeAcceptKey and
// RFC6455 §1.3 specify.
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey + magicGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// GenerateClientKey returns a fresh, random 16-byte Sec-WebSocket-Key,
// base64-encoded as RFC6455 §4.1 requires.
func GenerateClientKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

// UpgradeResponse builds the 101 Switching Protocols response a server
// sends to accept req, or an error response (400/426) if req isn't a
// valid WebSocket upgrade request.
func UpgradeResponse(req *nethttp.Message) []byte {
	upgrade, _ := req.Header("Upgrade")
	conn, _ := req.Header("Connection")
	key, hasKey := req.Header("Sec-WebSocket-Key")
	version, _ := req.Header("Sec-WebSocket-Version")

	if !headerHasToken(upgrade, "websocket") || !headerHasToken(conn, "upgrade") || !hasKey {
		return nethttp.Reply(400, nil, "expected a WebSocket upgrade request")
	}
	if version != "" && version != "13" {
		return nethttp.Reply(426, map[string]string{"Sec-WebSocket-Version": "13"}, "unsupported WebSocket version")
	}

	return nethttp.Reply(101, map[string]string{
		"Upgrade":              "websocket",
		"Connection":           "Upgrade",
		"Sec-WebSocket-Accept": AcceptKey(key),
	}, "")
}

// UpgradeRequest builds the client-side GET request for uri/host that
// initiates the handshake, returning the request bytes and the
// Sec-WebSocket-Key so the caller can verify the server's reply via
// VerifyAccept.
func UpgradeRequest(host, uri string) (reqBytes []byte, key string, err error) {
	key, err = GenerateClientKey()
	if err != nil {
		return nil, "", err
	}
	req := fmt.Sprintf(
		"GET %s HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Key: %s\r\n"+
			"Sec-WebSocket-Version: 13\r\n"+
			"\r\n",
		uri, host, key,
	)
	return []byte(req), key, nil
}

// VerifyAccept reports whether resp is a valid 101 response to a
// request that used key.
func VerifyAccept(resp *nethttp.Message, key string) bool {
	if resp.Status != 101 {
		return false
	}
	accept, ok := resp.Header("Sec-WebSocket-Accept")
	return ok && accept == AcceptKey(key)
}

// headerHasToken reports whether token appears as one of header's
// comma-separated values, case-insensitively. Upgrade/Connection never
// carry quoted values in practice, so a plain substring check on the
// lowercased header is enough.
func headerHasToken(header, token string) bool {
	return strings.Contains(strings.ToLower(header), strings.ToLower(token))
}
