// Package codec implements crosskvm's wire framing and message envelope
// (spec.md §4.1): a length-prefixed frame around a tagged-union payload,
// encoded with a stable little-endian binary format. It is the Go sibling
// of the teacher's own hand-rolled binary packets (internal/protocol/udp.go)
// generalised from a single fixed-size UDP packet to length-prefixed,
// variable-size stream frames.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxPayloadSize is the hard maximum frame payload (§4.1): a frame
// exceeding it is a fatal stream error, never a partial read.
const MaxPayloadSize = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxPayloadSize.
type ErrFrameTooLarge struct {
	Declared uint32
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("codec: frame length %d exceeds maximum %d", e.Declared, MaxPayloadSize)
}

// WriteFrame writes a single [u32 big-endian length][payload] frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &ErrFrameTooLarge{Declared: uint32(len(payload))}
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("codec: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("codec: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. A clean EOF at the start
// of a frame is returned as io.EOF so callers can distinguish "peer closed
// the stream" from a protocol error; an EOF in the middle of a frame is a
// protocol error (§4.1: "reject under-length reads as protocol errors, not
// partial buffers").
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("codec: truncated frame header: %w", err)
		}
		return nil, err // io.EOF propagates as-is: clean stream close
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxPayloadSize {
		return nil, &ErrFrameTooLarge{Declared: length}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("codec: truncated frame payload (declared %d bytes): %w", length, err)
	}
	return payload, nil
}
