// Package registry maps rpcframe request metadata (service.method) onto
// reflection-bound Go methods, adapted from the teacher's
// core/rpc/registry/service.go: the scan-by-reflection registration and
// lookup logic is unchanged, retargeted to rpcframe's Frame.Metadata
// convention of carrying "service/method" instead of the teacher's own
// transport-agnostic caller.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrServiceNotFound = errors.New("registry: service not found")
	ErrMethodNotFound  = errors.New("registry: method not found")
)

// Registry holds every service registered for dispatch from an incoming
// rpcframe request.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
}

// Service is one registered Go value and the exported methods on it that
// match the required signature.
type Service struct {
	Name    string
	Type    reflect.Type
	Value   reflect.Value
	Methods map[string]*Method
}

// Method is one callable method of a Service.
type Method struct {
	Name      string
	Func      reflect.Value
	ArgType   reflect.Type
	ReplyType reflect.Type
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// Register scans service for exported methods matching
//
//	func (s *T) MethodName(ctx context.Context, arg *ArgType) (*ReplyType, error)
//
// and makes them callable by name. Methods with any other signature are
// silently skipped, the same filter the teacher's own scan uses.
func (r *Registry) Register(name string, service any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc := &Service{
		Name:    name,
		Type:    reflect.TypeOf(service),
		Value:   reflect.ValueOf(service),
		Methods: make(map[string]*Method),
	}

	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	errType := reflect.TypeOf((*error)(nil)).Elem()

	for i := 0; i < svc.Type.NumMethod(); i++ {
		m := svc.Type.Method(i)
		mt := m.Type

		if m.PkgPath != "" {
			continue
		}
		if mt.NumIn() != 3 || mt.NumOut() != 2 {
			continue
		}
		if !mt.In(1).Implements(ctxType) {
			continue
		}
		argType := mt.In(2)
		if argType.Kind() != reflect.Ptr {
			continue
		}
		replyType := mt.Out(0)
		if replyType.Kind() != reflect.Ptr {
			continue
		}
		if !mt.Out(1).Implements(errType) {
			continue
		}

		svc.Methods[m.Name] = &Method{
			Name:      m.Name,
			Func:      m.Func,
			ArgType:   argType.Elem(),
			ReplyType: replyType.Elem(),
		}
	}

	r.services[name] = svc
}

func (r *Registry) lookup(serviceName, methodName string) (*Service, *Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[serviceName]
	if !ok {
		return nil, nil, ErrServiceNotFound
	}
	method, ok := svc.Methods[methodName]
	if !ok {
		return nil, nil, ErrMethodNotFound
	}
	return svc, method, nil
}

// Call invokes serviceName.methodName with arg, which must be a
// *ArgType matching the registered method's signature, and returns the
// *ReplyType value it produced.
func (r *Registry) Call(ctx context.Context, serviceName, methodName string, arg any) (any, error) {
	svc, method, err := r.lookup(serviceName, methodName)
	if err != nil {
		return nil, err
	}

	argVal := reflect.ValueOf(arg)
	if argVal.Type() != reflect.PtrTo(method.ArgType) {
		return nil, fmt.Errorf("registry: expected arg type %v, got %v", reflect.PtrTo(method.ArgType), argVal.Type())
	}

	out := method.Func.Call([]reflect.Value{svc.Value, reflect.ValueOf(ctx), argVal})
	if errVal := out[1]; !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}
	return out[0].Interface(), nil
}

// Services lists every registered service name.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}
