package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// TextOrBytes carries a byte range that is packaged as UTF-8 text when valid
// and as raw bytes otherwise (spec §4.5.2): "a submatch whose bytes are
// valid UTF-8 is packaged as match: text(...); otherwise match: bytes(...)
// — the same discipline applies to the surrounding lines in a
// contents-match."
type TextOrBytes struct {
	Text  string
	Raw   []byte
	IsRaw bool
}

// NewTextOrBytes classifies b by UTF-8 validity.
func NewTextOrBytes(b []byte) TextOrBytes {
	if utf8.Valid(b) {
		return TextOrBytes{Text: string(b)}
	}
	return TextOrBytes{Raw: b, IsRaw: true}
}

// Bytes returns the underlying bytes regardless of which variant is set.
func (t TextOrBytes) Bytes() []byte {
	if t.IsRaw {
		return t.Raw
	}
	return []byte(t.Text)
}

type textOrBytesWire struct {
	Type  string `json:"type" msgpack:"type"`
	Text  string `json:"text,omitempty" msgpack:"text,omitempty"`
	Bytes []byte `json:"bytes,omitempty" msgpack:"bytes,omitempty"`
}

func (t TextOrBytes) MarshalJSON() ([]byte, error) {
	if t.IsRaw {
		return json.Marshal(textOrBytesWire{Type: "bytes", Bytes: t.Raw})
	}
	return json.Marshal(textOrBytesWire{Type: "text", Text: t.Text})
}

func (t *TextOrBytes) UnmarshalJSON(data []byte) error {
	var w textOrBytesWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "text":
		*t = TextOrBytes{Text: w.Text}
	case "bytes":
		*t = TextOrBytes{Raw: w.Bytes, IsRaw: true}
	default:
		return fmt.Errorf("protocol: unknown text_or_bytes type %q", w.Type)
	}
	return nil
}

func (t TextOrBytes) EncodeMsgpack(enc *msgpack.Encoder) error {
	if t.IsRaw {
		return enc.Encode(textOrBytesWire{Type: "bytes", Bytes: t.Raw})
	}
	return enc.Encode(textOrBytesWire{Type: "text", Text: t.Text})
}

func (t *TextOrBytes) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w textOrBytesWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	switch w.Type {
	case "text":
		*t = TextOrBytes{Text: w.Text}
	case "bytes":
		*t = TextOrBytes{Raw: w.Bytes, IsRaw: true}
	default:
		return fmt.Errorf("protocol: unknown text_or_bytes type %q", w.Type)
	}
	return nil
}
