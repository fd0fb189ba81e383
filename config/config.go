package config

import (
	"flag"
	"time"
)

// Config holds the reactor's static tuning knobs, loaded once at
// startup. Unlike Manager, these aren't watched or changed at runtime;
// a process that wants a different poll timeout restarts with a
// different flag.
type Config struct {
	// PollTimeout bounds how long core.Manager.Poll blocks waiting for
	// readiness before returning to let the caller run its own work
	// between poll steps.
	PollTimeout time.Duration

	// RecvBufferCap is the maximum size a connection's receive buffer
	// is allowed to grow to before the connection is closed as
	// over-budget; app.New copies it into core.MaxRecvBufSize, which the
	// poll loop checks after every read.
	RecvBufferCap int

	// RecvBufferGranularity is the chunk size iobuf.Buffer grows by
	// once its current capacity is exhausted.
	RecvBufferGranularity int

	// MaxHTTPHeaders caps how many header lines protocol/http will
	// parse out of a single request or response before giving up.
	MaxHTTPHeaders int

	// DNSTimeout bounds how long a Manager.Connect resolve may stay
	// pending before the connection fails with an error.
	DNSTimeout time.Duration

	// EnableIPv6 controls whether Manager.Connect queries AAAA instead
	// of A when resolving a bare hostname. The resolver issues one
	// query per Connect call, not both.
	EnableIPv6 bool

	Env string
}

// New loads configuration from command-line flags.
func New() *Config {
	cfg := &Config{}

	flag.DurationVar(&cfg.PollTimeout, "poll-timeout", 100*time.Millisecond, "poll loop timeout")
	flag.IntVar(&cfg.RecvBufferCap, "recv-buffer-cap", 4<<20, "max receive buffer size in bytes")
	flag.IntVar(&cfg.RecvBufferGranularity, "recv-buffer-granularity", 4096, "receive buffer growth chunk size in bytes")
	flag.IntVar(&cfg.MaxHTTPHeaders, "max-http-headers", 100, "max HTTP header lines parsed per message")
	flag.DurationVar(&cfg.DNSTimeout, "dns-timeout", 3*time.Second, "DNS resolve timeout")
	flag.BoolVar(&cfg.EnableIPv6, "enable-ipv6", false, "resolve bare hostnames to AAAA instead of A")
	flag.StringVar(&cfg.Env, "env", "development", "environment (development/production)")

	flag.Parse()

	return cfg
}
