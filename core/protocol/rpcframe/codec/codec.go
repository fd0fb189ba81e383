// Package codec defines the pluggable encoding rpcframe payloads carry,
// adapted from the teacher's core/rpc/codec package: the Codec interface
// and its JSON/gob/Protobuf implementations are unchanged in shape.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ErrUnsupportedCodec is returned by Get for an unknown Type.
var ErrUnsupportedCodec = errors.New("codec: unsupported codec")

// Codec encodes and decodes rpcframe payloads.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// Type identifies a codec on the wire, carried in a frame's metadata by
// convention (rpcframe itself is codec-agnostic).
type Type byte

const (
	TypeJSON     Type = 0x01
	TypeGob      Type = 0x02
	TypeProtobuf Type = 0x03
)

// Get returns a Codec by wire type.
func Get(t Type) (Codec, error) {
	switch t {
	case TypeJSON:
		return JSON{}, nil
	case TypeGob:
		return Gob{}, nil
	case TypeProtobuf:
		return Protobuf{}, nil
	default:
		return nil, ErrUnsupportedCodec
	}
}

// JSON encodes with encoding/json.
type JSON struct{}

func (JSON) Encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (JSON) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                    { return "json" }

// Gob encodes with encoding/gob.
type Gob struct{}

func (Gob) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Gob) Decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (Gob) Name() string { return "gob" }

// Protobuf encodes with google.golang.org/protobuf; v must implement
// proto.Message.
type Protobuf struct{}

func (Protobuf) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (Protobuf) Decode(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, msg)
}

func (Protobuf) Name() string { return "protobuf" }
