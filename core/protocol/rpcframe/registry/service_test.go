package registry

import (
	"context"
	"errors"
	"testing"
)

type EchoArg struct{ Text string }
type EchoReply struct{ Text string }

type EchoService struct{}

func (EchoService) Echo(ctx context.Context, arg *EchoArg) (*EchoReply, error) {
	return &EchoReply{Text: arg.Text}, nil
}

func (EchoService) Fail(ctx context.Context, arg *EchoArg) (*EchoReply, error) {
	return nil, errors.New("always fails")
}

// NotAMethod has the wrong signature and should be skipped during scan.
func (EchoService) NotAMethod(s string) string { return s }

func TestRegisterAndCall(t *testing.T) {
	r := New()
	r.Register("echo", EchoService{})

	reply, err := r.Call(context.Background(), "echo", "Echo", &EchoArg{Text: "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	got, ok := reply.(*EchoReply)
	if !ok || got.Text != "hi" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestCallPropagatesMethodError(t *testing.T) {
	r := New()
	r.Register("echo", EchoService{})

	if _, err := r.Call(context.Background(), "echo", "Fail", &EchoArg{}); err == nil {
		t.Fatal("expected error from Fail method")
	}
}

func TestCallUnknownServiceOrMethod(t *testing.T) {
	r := New()
	r.Register("echo", EchoService{})

	if _, err := r.Call(context.Background(), "missing", "Echo", &EchoArg{}); err != ErrServiceNotFound {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	if _, err := r.Call(context.Background(), "echo", "Missing", &EchoArg{}); err != ErrMethodNotFound {
		t.Fatalf("expected ErrMethodNotFound, got %v", err)
	}
}

func TestRegisterSkipsMismatchedSignatures(t *testing.T) {
	r := New()
	r.Register("echo", EchoService{})

	svc := r.services["echo"]
	if _, ok := svc.Methods["NotAMethod"]; ok {
		t.Fatal("NotAMethod should have been skipped, wrong signature")
	}
	if len(svc.Methods) != 2 {
		t.Fatalf("expected 2 registered methods, got %d: %v", len(svc.Methods), svc.Methods)
	}
}
