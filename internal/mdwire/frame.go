// Package mdwire implements the length-prefixed framing and CBOR payload
// encoding the MDSync protocol (component E) runs over: every message is
// a 4-byte big-endian length followed by its payload (spec.md §4.E/§6).
// Two distinct encodings are multiplexed by position, not by tag: the
// SyncTree level exchange packs raw (pos, xor, chxor) triples, while
// hello/serial-map/syncable payloads are deterministic CBOR maps.
package mdwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameBytes bounds a single frame's payload size, guarding against a
// corrupt or adversarial peer claiming an implausible length prefix.
const MaxFrameBytes = 64 << 20

// WriteFrame writes payload as length:u32_be || payload. An empty (but
// non-nil or nil) payload writes a zero-length frame, the phase
// terminator spec.md §4.E/§6 calls for.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("mdwire: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("mdwire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. A zero-length frame returns
// a non-nil, empty slice so callers can distinguish "terminator" from
// "error" with a plain length check.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("mdwire: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return []byte{}, nil
	}
	if n > MaxFrameBytes {
		return nil, fmt.Errorf("mdwire: frame of %d bytes exceeds max %d", n, MaxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("mdwire: read frame payload: %w", err)
	}
	return buf, nil
}

// WriteCBOR marshals v with Marshal and writes it as one frame.
func WriteCBOR(w io.Writer, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// ReadCBOR reads one frame and unmarshals it into v. It returns io.EOF if
// the frame was the zero-length terminator.
func ReadCBOR(r io.Reader, v any) error {
	data, err := ReadFrame(r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return io.EOF
	}
	return Unmarshal(data, v)
}
