/*
Package netkit is an event-driven, single-threaded, cooperative
networking library for TCP, UDP, HTTP/1.x, WebSocket, MQTT 3.1.1 and
SNTP, with optional TLS and non-blocking DNS resolution.

A single core.Manager multiplexes every connection through one poll
loop: nothing in the reactor's hot path spawns a goroutine or blocks,
so an application drives it with a plain for loop calling Manager.Poll
on whatever schedule it likes.

Quick start

	package main

	import (
		"github.com/netkit/netkit/app"
		"github.com/netkit/netkit/config"
		nethttp "github.com/netkit/netkit/core/protocol/http"
	)

	func main() {
		cfg := config.New()
		a := app.New(cfg)

		a.Router().Get("/hello", func(ctx *nethttp.Context) {
			ctx.String(200, "Hello, World!")
		})

		a.Listen("tcp://0.0.0.0:8080")
		a.Run()
	}

Modules

The library is organized into several packages:

  - app: thin Manager/router/middleware wrapper for example programs
  - config: startup tuning knobs plus a watchable runtime key/value store
  - core: the connection state machine and poll loop
  - core/socket, core/addr, core/dns, core/iobuf, core/timers, core/tlsdrv: reactor plumbing
  - core/protocol/http: HTTP/1.x parsing, encoding, routing and middleware
  - core/protocol/websocket: RFC 6455 framing and handshake
  - core/protocol/mqtt: MQTT 3.1.1 packet codec and QoS flow
  - core/protocol/sntp: SNTP client
  - core/protocol/rpcframe: framed RPC tunneling with pluggable codecs
  - core/observability: per-handler performance monitoring
*/
package netkit
