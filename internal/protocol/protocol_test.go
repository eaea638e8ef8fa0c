package protocol

import (
	"reflect"
	"testing"
)

func TestRequestJSONRoundTrip(t *testing.T) {
	req := Request{
		ID: "req-1",
		Payload: &DirRead{
			Path:        "/tmp/project",
			Depth:       1,
			Absolute:    false,
			IncludeRoot: true,
		},
	}

	data, err := EncodeRequestJSON(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRequestJSON(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(req, got) {
		t.Errorf("round-trip mismatch:\n want %+v\n got  %+v", req, got)
	}
}

func TestRequestJSONUnknownFieldRejected(t *testing.T) {
	data := []byte(`{"id":"x","payload":{"type":"file_read","path":"/a","bogus":1}}`)
	if _, err := DecodeRequestJSON(data); err == nil {
		t.Fatal("expected decode error for unknown field, got nil")
	}
}

func TestResponseRequiresOriginID(t *testing.T) {
	data := []byte(`{"id":"x","payload":{"type":"ok"}}`)
	if _, err := DecodeResponseJSON(data); err == nil {
		t.Fatal("expected error for missing origin_id")
	}
}

func TestResponseBinaryRoundTrip(t *testing.T) {
	resp := Response{
		ID:       "resp-1",
		OriginID: "req-1",
		Payload: &SearchResults{
			ID: "search-1",
			Matches: []SearchMatch{
				{
					Path:           "dir/other/bin",
					Lines:          NewTextOrBytes([]byte("dir/other/bin\n")),
					LineNumber:     1,
					AbsoluteOffset: 0,
					Submatches: []Submatch{
						{Match: NewTextOrBytes([]byte("other")), Start: 4, End: 9},
					},
				},
			},
		},
	}

	data, err := EncodeResponseBinary(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeResponseBinary(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(resp, got) {
		t.Errorf("round-trip mismatch:\n want %+v\n got  %+v", resp, got)
	}
}

func TestTextOrBytesBinaryData(t *testing.T) {
	raw := []byte{0x00, 0x9F, 0x92, 0x96, 0x0A}
	tb := NewTextOrBytes(raw)
	if !tb.IsRaw {
		t.Fatal("expected invalid-UTF8 input to classify as raw bytes")
	}

	resp := Response{
		ID:       "r2",
		OriginID: "o2",
		Payload: &SearchResults{
			ID: "s2",
			Matches: []SearchMatch{
				{Path: "bin.dat", Lines: tb, Submatches: []Submatch{{Match: tb, Start: 0, End: uint64(len(raw))}}},
			},
		},
	}
	data, err := EncodeResponseJSON(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeResponseJSON(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(resp, got) {
		t.Errorf("round-trip mismatch:\n want %+v\n got  %+v", resp, got)
	}
}

func TestClassifyErr(t *testing.T) {
	if ClassifyErr(nil) != ErrOther {
		t.Errorf("nil error should classify as other")
	}
}
