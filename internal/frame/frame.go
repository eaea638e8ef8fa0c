package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameLen bounds a single frame's encoded length, guarding against a
// corrupt or hostile length header forcing an unbounded allocation.
const maxFrameLen = 64 << 20

// lenHeaderSize is the width of the frame's length prefix in bytes.
const lenHeaderSize = 4

// writeRaw length-prefixes payload and writes it to w in one call.
func writeRaw(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameLen {
		return fmt.Errorf("frame: payload of %d bytes exceeds max frame length %d", len(payload), maxFrameLen)
	}
	buf := make([]byte, lenHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[lenHeaderSize:], payload)
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n == 0 && len(buf) > 0 {
		return io.ErrShortWrite
	}
	return nil
}

// readRaw reads one length-prefixed frame from r, blocking until the full
// frame has arrived or the reader errors.
func readRaw(r io.Reader) ([]byte, error) {
	var hdr [lenHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("frame: declared length %d exceeds max frame length %d", n, maxFrameLen)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF && n > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// extractFrame tries to pull one length-prefixed frame out of the front of
// buf without blocking. It reports how many bytes of buf the frame consumed
// so the caller can slice its buffer forward.
func extractFrame(buf []byte) (payload []byte, consumed int, ok bool) {
	if len(buf) < lenHeaderSize {
		return nil, 0, false
	}
	n := binary.BigEndian.Uint32(buf[:lenHeaderSize])
	total := lenHeaderSize + int(n)
	if len(buf) < total {
		return nil, 0, false
	}
	out := make([]byte, n)
	copy(out, buf[lenHeaderSize:total])
	return out, total, true
}
