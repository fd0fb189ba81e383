// Package app wires together a core.Manager, the HTTP router and
// middleware pipeline into the small top-level object an application
// program embeds, the way the teacher's app.App wrapped its Engine.
package app

import (
	"log"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netkit/netkit/config"
	"github.com/netkit/netkit/core"
	nethttp "github.com/netkit/netkit/core/protocol/http"
	"github.com/netkit/netkit/core/protocol/http/middleware"
	"github.com/netkit/netkit/core/protocol/http/router"
)

// DefaultResolver is used when the caller has no preferred DNS server.
var DefaultResolver = netip.MustParseAddrPort("8.8.8.8:53")

// App bundles a reactor, an HTTP router and a middleware pipeline
// behind the minimal surface an example program needs: register
// routes and middleware, then Run.
type App struct {
	cfg      *config.Config
	mgr      *core.Manager
	router   *router.Router
	pipeline *middleware.Pipeline
}

// New creates an application instance bound to a fresh Manager.
func New(cfg *config.Config) *App {
	mgr, err := core.New(DefaultResolver)
	if err != nil {
		log.Fatalf("app: failed to create manager: %v", err)
	}
	mgr.SetDNSTimeout(cfg.DNSTimeout)
	mgr.SetEnableIPv6(cfg.EnableIPv6)
	if cfg.MaxHTTPHeaders > 0 {
		nethttp.MaxHeaders = cfg.MaxHTTPHeaders
	}
	if cfg.RecvBufferCap > 0 {
		core.MaxRecvBufSize = cfg.RecvBufferCap
	}
	if cfg.RecvBufferGranularity > 0 {
		core.BufferGranularity = cfg.RecvBufferGranularity
	}

	return &App{
		cfg:      cfg,
		mgr:      mgr,
		router:   router.New(),
		pipeline: middleware.New(),
	}
}

// Manager returns the underlying reactor for callers that need lower
// level access (e.g. to open additional listeners).
func (a *App) Manager() *core.Manager { return a.mgr }

// Router returns the HTTP router for route registration.
func (a *App) Router() *router.Router { return a.router }

// Use appends middleware to the request pipeline, run before the
// router dispatches to a matched handler.
func (a *App) Use(h middleware.HandlerFunc) { a.pipeline.Use(h) }

// Listen opens an HTTP listener on addr (e.g. "tcp://0.0.0.0:8080")
// that dispatches every request through the app's pipeline and router.
func (a *App) Listen(addr string) error {
	ln, err := a.mgr.Listen(addr, a.handleEvent, nil)
	if err != nil {
		return err
	}
	ln.ProtoHandler = nethttp.WireProtoHandler(true)
	return nil
}

func (a *App) handleEvent(c *core.Connection, ev core.Event, data any) {
	if ev != nethttp.EvMsg {
		return
	}
	req := data.(*nethttp.Message)
	handler, params := a.router.Find(req.Method, req.URI)
	ctx := nethttp.NewContext(c, req, params)

	if handler == nil {
		handler = func(ctx *nethttp.Context) { ctx.NotFound() }
	}
	a.pipeline.Execute(ctx, middleware.HandlerFunc(handler))
}

// Run blocks, driving the reactor's poll loop until SIGINT or SIGTERM
// is received, then closes every connection and returns.
func (a *App) Run() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})
	go func() {
		sig := <-quit
		log.Printf("app: signal received: %v, shutting down", sig)
		close(stop)
	}()

	log.Printf("app: listening [%s]", a.cfg.Env)
	for {
		select {
		case <-stop:
			a.mgr.Free()
			return
		default:
			if err := a.mgr.Poll(int(a.cfg.PollTimeout / time.Millisecond)); err != nil {
				log.Printf("app: poll error: %v", err)
			}
		}
	}
}
