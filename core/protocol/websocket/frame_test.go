package websocket

import "testing"

func TestWriteParseFrameRoundTripUnmasked(t *testing.T) {
	dst := WriteFrame(nil, OpText, []byte("hello"), true, false)
	f, ok, err := ParseFrame(dst)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if !ok {
		t.Fatal("expected complete frame")
	}
	if f.OpCode != OpText || !f.Fin || string(f.Payload) != "hello" {
		t.Fatalf("unexpected frame %+v", f)
	}
	if f.Consumed != len(dst) {
		t.Fatalf("consumed %d, want %d", f.Consumed, len(dst))
	}
}

func TestWriteParseFrameRoundTripMasked(t *testing.T) {
	dst := WriteFrame(nil, OpBinary, []byte{1, 2, 3, 4}, true, true)
	f, ok, err := ParseFrame(dst)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !f.Masked {
		t.Fatal("expected masked frame")
	}
	if string(f.Payload) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected payload %v", f.Payload)
	}
}

func TestParseFrameIncomplete(t *testing.T) {
	dst := WriteFrame(nil, OpText, []byte("a longer payload here"), true, false)
	_, ok, err := ParseFrame(dst[:3])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected incomplete frame to report not-ok")
	}
}

func TestWriteFrameExtended16BitLength(t *testing.T) {
	payload := make([]byte, 1000)
	dst := WriteFrame(nil, OpBinary, payload, true, false)
	if dst[1] != 126 {
		t.Fatalf("expected extended-16 length marker, got %d", dst[1])
	}
	f, ok, err := ParseFrame(dst)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if len(f.Payload) != 1000 {
		t.Fatalf("unexpected payload length %d", len(f.Payload))
	}
}

func TestWrapProducesFinFrame(t *testing.T) {
	out := Wrap([]byte("abc"), OpBinary, false)
	f, ok, err := ParseFrame(out)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !f.Fin || f.OpCode != OpBinary || string(f.Payload) != "abc" {
		t.Fatalf("unexpected frame %+v", f)
	}
}
