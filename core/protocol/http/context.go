package http

import (
	"encoding/json"

	"github.com/netkit/netkit/core"
)

// Context carries one parsed request through a middleware pipeline and a
// router handler. It wraps the Connection a request arrived on and the
// Message the protocol handler already parsed off Recv, the same
// parse-once-pass-a-view discipline Message itself uses.
type Context struct {
	Conn   *core.Connection
	Req    *Message
	Params map[string]string

	status  int
	headers map[string]string
	aborted bool
}

// NewContext builds a Context for a just-parsed request. params may be nil.
func NewContext(c *core.Connection, req *Message, params map[string]string) *Context {
	return &Context{Conn: c, Req: req, Params: params, status: 200}
}

func (ctx *Context) Method() string { return ctx.Req.Method }
func (ctx *Context) Path() string   { return ctx.Req.URI }
func (ctx *Context) Query() string  { return ctx.Req.Query }

// Param returns a route parameter captured by the router, or "".
func (ctx *Context) Param(name string) string {
	if ctx.Params == nil {
		return ""
	}
	return ctx.Params[name]
}

// Header reads a request header.
func (ctx *Context) Header(name string) string {
	v, _ := ctx.Req.Header(name)
	return v
}

// SetHeader queues a header to send with the eventual response.
func (ctx *Context) SetHeader(name, value string) {
	if ctx.headers == nil {
		ctx.headers = make(map[string]string, 4)
	}
	ctx.headers[name] = value
}

// ResponseHeader reads back a header previously queued via SetHeader.
func (ctx *Context) ResponseHeader(name string) string {
	return ctx.headers[name]
}

// Status sets the response status code without sending anything yet.
func (ctx *Context) Status(code int) { ctx.status = code }

// Abort marks the pipeline as short-circuited: Pipeline.Execute stops
// calling further middleware and skips the routed handler once set.
func (ctx *Context) Abort() { ctx.aborted = true }

// IsAborted reports whether Abort has been called.
func (ctx *Context) IsAborted() bool { return ctx.aborted }

// JSON writes a JSON response with the given status code, replacing
// whatever Status call preceded it.
func (ctx *Context) JSON(code int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx.status = code
	if ctx.Conn == nil {
		return nil
	}
	return ctx.Conn.Write(Reply(code, ctx.headers, string(body)))
}

// String writes a plain-text response.
func (ctx *Context) String(code int, format string, args ...any) error {
	ctx.status = code
	if ctx.Conn == nil {
		return nil
	}
	return ctx.Conn.Write(Replyf(code, ctx.headers, format, args...))
}

// Bytes writes an arbitrary response body as-is.
func (ctx *Context) Bytes(code int, body []byte) error {
	ctx.status = code
	if ctx.Conn == nil {
		return nil
	}
	return ctx.Conn.Write(Reply(code, ctx.headers, string(body)))
}

// NotFound is a convenience for the router's unmatched-route case.
func (ctx *Context) NotFound() error {
	return ctx.String(404, "not found: %s %s", ctx.Method(), ctx.Path())
}
