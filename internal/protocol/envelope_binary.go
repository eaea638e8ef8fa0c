package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// binEnvelope mirrors envelopeWire but for the compact MessagePack form.
// msgpack encodes structs as name-keyed maps by default, so field names
// survive exactly as the text form requires (spec §4.3: "the binary form
// preserves field names").
type binEnvelope struct {
	ID       string `msgpack:"id"`
	OriginID string `msgpack:"origin_id,omitempty"`
	Header   []byte `msgpack:"header,omitempty"`
	Payload  map[string]any `msgpack:"payload"`
}

func marshalTaggedBinary(kindTag string, v any) (map[string]any, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal binary payload: %w", err)
	}
	var m map[string]any
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: flatten binary payload: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	m["type"] = kindTag
	return m, nil
}

func unmarshalTaggedBinary(m map[string]any, lookup func(tag string) (any, bool)) (any, string, error) {
	tagAny, ok := m["type"]
	if !ok {
		return nil, "", fmt.Errorf("protocol: binary payload missing type tag")
	}
	tag, ok := tagAny.(string)
	if !ok {
		return nil, "", fmt.Errorf("protocol: binary payload type tag is not a string")
	}
	target, ok := lookup(tag)
	if !ok {
		return nil, tag, fmt.Errorf("protocol: unknown payload type %q", tag)
	}
	delete(m, "type")
	raw, err := msgpack.Marshal(m)
	if err != nil {
		return nil, tag, err
	}
	if err := msgpack.Unmarshal(raw, target); err != nil {
		return nil, tag, fmt.Errorf("protocol: decode %s binary payload: %w", tag, err)
	}
	return target, tag, nil
}

// EncodeRequestBinary renders a Request in the compact MessagePack form.
func EncodeRequestBinary(r Request) ([]byte, error) {
	payload, err := marshalTaggedBinary(string(r.Payload.Kind()), r.Payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(binEnvelope{ID: r.ID, OriginID: r.OriginID, Header: r.Header, Payload: payload})
}

// DecodeRequestBinary parses the compact MessagePack form of a Request.
func DecodeRequestBinary(data []byte) (Request, error) {
	var env binEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Request{}, fmt.Errorf("protocol: decode binary request envelope: %w", err)
	}
	payload, _, err := unmarshalTaggedBinary(env.Payload, func(tag string) (any, bool) {
		f, ok := reqFactories[ReqKind(tag)]
		if !ok {
			return nil, false
		}
		return f(), true
	})
	if err != nil {
		return Request{}, err
	}
	return Request{ID: env.ID, OriginID: env.OriginID, Header: env.Header, Payload: payload.(RequestPayload)}, nil
}

// EncodeResponseBinary renders a Response in the compact MessagePack form.
func EncodeResponseBinary(r Response) ([]byte, error) {
	payload, err := marshalTaggedBinary(string(r.Payload.Kind()), r.Payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(binEnvelope{ID: r.ID, OriginID: r.OriginID, Header: r.Header, Payload: payload})
}

// DecodeResponseBinary parses the compact MessagePack form of a Response.
func DecodeResponseBinary(data []byte) (Response, error) {
	var env binEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Response{}, fmt.Errorf("protocol: decode binary response envelope: %w", err)
	}
	if env.OriginID == "" {
		return Response{}, fmt.Errorf("protocol: response missing required origin_id")
	}
	payload, _, err := unmarshalTaggedBinary(env.Payload, func(tag string) (any, bool) {
		f, ok := respFactories[RespKind(tag)]
		if !ok {
			return nil, false
		}
		return f(), true
	})
	if err != nil {
		return Response{}, err
	}
	return Response{ID: env.ID, OriginID: env.OriginID, Header: env.Header, Payload: payload.(ResponsePayload)}, nil
}
