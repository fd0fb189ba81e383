// Package router dispatches parsed HTTP requests to registered handlers.
// Routes with literal segments and :param/*catchAll wildcards go into a
// radix tree (an adaptation of the teacher's core/router/radix.go); that
// tree can't express the wider glob grammar spec.md §4.7 defines for
// listen-address and path matching elsewhere in the http package ('?'
// single-char, '#' multi-segment wildcards), so any route registered
// with AddGlob instead matches through http.MatchGlob as a fallback when
// the radix lookup misses, unifying the two matching schemes the HTTP
// module otherwise keeps independent.
package router

import (
	nethttp "github.com/netkit/netkit/core/protocol/http"
)

// HandlerFunc is a routed request handler.
type HandlerFunc func(*nethttp.Context)

// globRoute is a fallback route matched with http.MatchGlob instead of
// the radix tree, tried in registration order after a radix miss.
type globRoute struct {
	method  string
	pattern string
	handler HandlerFunc
}

// Router is a radix tree keyed on method+path, with :param and *catchAll
// segment support, plus an ordered list of glob fallback routes for
// patterns the tree can't represent.
type Router struct {
	root  *node
	globs []globRoute
}

type nodeType uint8

const (
	static   nodeType = iota // default
	param                    // :param
	catchAll                 // *param
)

type node struct {
	path      string
	indices   string
	children  []*node
	handlers  map[string]HandlerFunc // method -> handler
	priority  uint32
	nType     nodeType
	paramName string
}

// New creates an empty Router.
func New() *Router {
	return &Router{
		root: &node{
			handlers: make(map[string]HandlerFunc),
		},
	}
}

// Add registers handler for method+path. path must begin with '/'.
func (r *Router) Add(method, path string, handler HandlerFunc) {
	if path[0] != '/' {
		panic("path must begin with '/'")
	}
	r.root.addRoute(method, path, handler)
}

// Get, Post, Put, Delete are Add shorthands for the common HTTP verbs.
func (r *Router) Get(path string, handler HandlerFunc)    { r.Add("GET", path, handler) }
func (r *Router) Post(path string, handler HandlerFunc)   { r.Add("POST", path, handler) }
func (r *Router) Put(path string, handler HandlerFunc)    { r.Add("PUT", path, handler) }
func (r *Router) Delete(path string, handler HandlerFunc) { r.Add("DELETE", path, handler) }

// AddGlob registers handler for method against pattern using the glob
// grammar http.MatchGlob implements ('?', '*', '#' wildcards), for
// routes the radix tree's :param/*catchAll segments can't express — a
// '#' spanning more than one path segment, for instance. Glob routes are
// tried in registration order, after the radix tree misses, and don't
// populate ctx.Params: the glob grammar doesn't name its wildcards.
func (r *Router) AddGlob(method, pattern string, handler HandlerFunc) {
	r.globs = append(r.globs, globRoute{method: method, pattern: pattern, handler: handler})
}

// Find looks up the handler for method+path: the radix tree first, then
// registered glob routes. It returns any captured route parameters
// alongside a radix match; a glob match never captures parameters.
func (r *Router) Find(method, path string) (HandlerFunc, map[string]string) {
	if r.root != nil {
		if handler, params := r.root.getValue(method, path); handler != nil {
			return handler, params
		}
	}
	for _, g := range r.globs {
		if g.method == method && nethttp.MatchGlob(g.pattern, path) {
			return g.handler, nil
		}
	}
	return nil, nil
}

// Dispatch finds and invokes the handler for ctx's method+path, populating
// ctx.Params with any captured route parameters first. It reports whether
// a route matched.
func (r *Router) Dispatch(ctx *nethttp.Context) bool {
	handler, params := r.Find(ctx.Method(), ctx.Path())
	if handler == nil {
		return false
	}
	ctx.Params = params
	handler(ctx)
	return true
}

func (n *node) addRoute(method, path string, handler HandlerFunc) {
	fullPath := path

	if n.path == "" && len(n.children) == 0 {
		n.insertChild(method, path, handler)
		n.nType = static
		return
	}

	for {
		i := longestCommonPrefix(path, n.path)

		if i < len(n.path) {
			child := &node{
				path:     n.path[i:],
				indices:  n.indices,
				children: n.children,
				handlers: n.handlers,
				priority: n.priority - 1,
				nType:    n.nType,
			}

			n.children = []*node{child}
			n.indices = string([]byte{n.path[i]})
			n.path = path[:i]
			n.handlers = make(map[string]HandlerFunc)
			n.nType = static
		}

		if i < len(path) {
			path = path[i:]

			if n.nType == param {
				n.priority++
				continue
			}

			idxc := path[0]

			if n.nType == param && idxc == '/' && len(n.children) == 1 {
				n = n.children[0]
				n.priority++
				continue
			}

			childFound := false
			for i, c := range []byte(n.indices) {
				if c == idxc {
					n.priority++
					n = n.children[i]
					childFound = true
					break
				}
			}
			if childFound {
				continue
			}

			if idxc != ':' && idxc != '*' {
				n.indices += string([]byte{idxc})
				child := &node{}
				n.addChild(child)
				n = child
			}
			_ = fullPath
			n.insertChild(method, path, handler)
			return
		}

		if n.handlers == nil {
			n.handlers = make(map[string]HandlerFunc)
		}
		n.handlers[method] = handler
		return
	}
}

func (n *node) insertChild(method, path string, handler HandlerFunc) {
	for {
		wildcard, i, valid := findWildcard(path)
		if i < 0 {
			break
		}
		if !valid {
			panic("only one wildcard per path segment is allowed")
		}
		if len(wildcard) < 2 {
			panic("wildcards must be named")
		}

		if wildcard[0] == ':' {
			if i > 0 {
				n.path = path[:i]
				path = path[i:]
			}

			child := &node{
				nType:     param,
				path:      wildcard,
				paramName: wildcard[1:],
			}
			n.addChild(child)
			n = child
			n.priority++

			if len(wildcard) < len(path) {
				path = path[len(wildcard):]
				child := &node{priority: 1}
				n.addChild(child)
				n = child
				continue
			}

			if n.handlers == nil {
				n.handlers = make(map[string]HandlerFunc)
			}
			n.handlers[method] = handler
			return
		}

		if i+len(wildcard) != len(path) {
			panic("catch-all routes are only allowed at the end of the path")
		}

		if i > 0 && path[i-1] == '/' {
			n.path = path[:i-1]

			child := &node{
				nType:     catchAll,
				path:      path[i-1:],
				paramName: wildcard[1:],
				handlers:  map[string]HandlerFunc{method: handler},
				priority:  1,
			}
			n.addChild(child)
			return
		}

		if len(n.path) > 0 && n.path[len(n.path)-1] == '/' {
			n.path = path[:i]

			child := &node{
				nType:     catchAll,
				path:      wildcard,
				paramName: wildcard[1:],
				handlers:  map[string]HandlerFunc{method: handler},
				priority:  1,
			}
			n.addChild(child)
			return
		}

		panic("catch-all conflicts with existing handle for the path segment")
	}

	n.path = path
	if n.handlers == nil {
		n.handlers = make(map[string]HandlerFunc)
	}
	n.handlers[method] = handler
}

func (n *node) addChild(child *node) {
	if n.children == nil {
		n.children = make([]*node, 0, 1)
	}
	n.children = append(n.children, child)
}

func (n *node) getValue(method, path string) (HandlerFunc, map[string]string) {
	var params map[string]string

	for {
		prefix := n.path

		if len(path) > len(prefix) {
			if path[:len(prefix)] == prefix {
				path = path[len(prefix):]

				idxc := path[0]
				childFound := false
				for i, c := range []byte(n.indices) {
					if c == idxc {
						n = n.children[i]
						childFound = true
						break
					}
				}
				if childFound {
					continue
				}

				if len(n.children) > 0 {
					lastChild := n.children[len(n.children)-1]

					if lastChild.nType != static {
						n = lastChild

						if params == nil {
							params = make(map[string]string)
						}

						switch n.nType {
						case param:
							end := 0
							for end < len(path) && path[end] != '/' {
								end++
							}

							params[n.paramName] = path[:end]

							if end < len(path) {
								if len(n.children) > 0 {
									path = path[end:]
									n = n.children[0]
									continue
								}
								return nil, nil
							}

							if handler := n.handlers[method]; handler != nil {
								return handler, params
							}
							return nil, nil

						case catchAll:
							params[n.paramName] = path
							if handler := n.handlers[method]; handler != nil {
								return handler, params
							}
							return nil, nil

						default:
							panic("invalid node type")
						}
					}
				}

				return nil, nil
			}
		}

		if path != prefix {
			return nil, nil
		}

		if handler := n.handlers[method]; handler != nil {
			return handler, params
		}
		return nil, nil
	}
}

func findWildcard(path string) (wildcard string, i int, valid bool) {
	for start, c := range []byte(path) {
		if c != ':' && c != '*' {
			continue
		}

		valid = true
		for end, c := range []byte(path[start+1:]) {
			switch c {
			case '/':
				return path[start : start+1+end], start, valid
			case ':', '*':
				valid = false
			}
		}
		return path[start:], start, valid
	}
	return "", -1, false
}

func longestCommonPrefix(a, b string) int {
	i := 0
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for i < max && a[i] == b[i] {
		i++
	}
	return i
}
