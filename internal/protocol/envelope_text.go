package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// tagWire is the flattened internally-tagged shape spec §4.3 describes for
// the self-describing text form: {"type": "<snake_case kind>", ...fields}.
type tagWire struct {
	Type string `json:"type"`
}

func marshalTagged(kindTag string, v any) (json.RawMessage, error) {
	fields, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(fields, &m); err != nil {
		return nil, fmt.Errorf("protocol: flatten payload: %w", err)
	}
	typeTag, err := json.Marshal(kindTag)
	if err != nil {
		return nil, err
	}
	m["type"] = typeTag
	return json.Marshal(m)
}

// unmarshalTagged peeks the "type" field, strips it, and decodes the
// remaining fields into the struct the factory produced — rejecting any
// other unrecognized field (deny_unknown_fields, spec §4.3).
func unmarshalTagged(raw json.RawMessage, lookup func(tag string) (any, bool)) (any, string, error) {
	var tag tagWire
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, "", fmt.Errorf("protocol: decode type tag: %w", err)
	}
	target, ok := lookup(tag.Type)
	if !ok {
		return nil, tag.Type, fmt.Errorf("protocol: unknown payload type %q", tag.Type)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, tag.Type, err
	}
	delete(m, "type")
	stripped, err := json.Marshal(m)
	if err != nil {
		return nil, tag.Type, err
	}

	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, tag.Type, fmt.Errorf("protocol: decode %s payload: %w", tag.Type, err)
	}
	return target, tag.Type, nil
}

type envelopeWire struct {
	ID       string          `json:"id"`
	OriginID string          `json:"origin_id,omitempty"`
	Header   []byte          `json:"header,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// EncodeRequestJSON renders a Request in the self-describing text form.
func EncodeRequestJSON(r Request) ([]byte, error) {
	payload, err := marshalTagged(string(r.Payload.Kind()), r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeWire{ID: r.ID, OriginID: r.OriginID, Header: r.Header, Payload: payload})
}

// DecodeRequestJSON parses the self-describing text form of a Request.
func DecodeRequestJSON(data []byte) (Request, error) {
	var env envelopeWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Request{}, fmt.Errorf("protocol: decode request envelope: %w", err)
	}
	payload, _, err := unmarshalTagged(env.Payload, func(tag string) (any, bool) {
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

// EncodeResponseJSON renders a Response in the self-describing text form.
func EncodeResponseJSON(r Response) ([]byte, error) {
	payload, err := marshalTagged(string(r.Payload.Kind()), r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeWire{ID: r.ID, OriginID: r.OriginID, Header: r.Header, Payload: payload})
}

// DecodeResponseJSON parses the self-describing text form of a Response.
func DecodeResponseJSON(data []byte) (Response, error) {
	var env envelopeWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Response{}, fmt.Errorf("protocol: decode response envelope: %w", err)
	}
	if env.OriginID == "" {
		return Response{}, fmt.Errorf("protocol: response missing required origin_id")
	}
	payload, _, err := unmarshalTagged(env.Payload, func(tag string) (any, bool) {
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
