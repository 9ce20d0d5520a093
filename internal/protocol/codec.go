package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// New builds an envelope around a JSON-encoded payload.
func New(t, room, from string, payload any) (Envelope, error) {
	if t == "" {
		return Envelope{}, fmt.Errorf("trying to encode envelope with empty type")
	}
	if payload == nil {
		return Envelope{}, fmt.Errorf("trying to encode nil payload")
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{T: t, Room: room, From: from, P: pb}, nil
}

// DecodePayload unmarshals the envelope payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	err := json.Unmarshal(env.P, &out)
	return out, err
}

// Codec turns envelopes into websocket frames and back.
type Codec interface {
	Marshal(Envelope) ([]byte, error)
	Unmarshal([]byte) (Envelope, error)
	Binary() bool
}

// JSONCodec produces text frames.
type JSONCodec struct{}

func (JSONCodec) Marshal(e Envelope) ([]byte, error) { return json.Marshal(e) }

func (JSONCodec) Unmarshal(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: empty frame")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func (JSONCodec) Binary() bool { return false }

// MsgpackCodec produces binary frames. The payload stays JSON inside.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(e Envelope) ([]byte, error) { return msgpack.Marshal(&e) }

func (MsgpackCodec) Unmarshal(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: empty frame")
	}
	var e Envelope
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func (MsgpackCodec) Binary() bool { return true }

// CodecByName returns the codec for "json" (default) or "msgpack".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
