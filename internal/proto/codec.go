package proto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/vovakirdan/wirerelay/internal/errs"
)

// DefaultMaxFrameBytes bounds the payload length accepted from the wire.
const DefaultMaxFrameBytes = 16 << 20

const headerLen = 4

// Payload field numbers.
const (
	fieldKind protowire.Number = 1
	fieldBody protowire.Number = 2
	fieldName protowire.Number = 3
	fieldData protowire.Number = 4
)

var (
	// ErrFrameTooLarge is returned when a length prefix exceeds the configured maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrEmptyFrame is returned for a zero length prefix.
	ErrEmptyFrame = errors.New("empty frame")
)

// MarshalPayload serializes m without the length prefix.
func MarshalPayload(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, errs.Format("marshal payload", err)
	}

	b := make([]byte, 0, 8+len(m.Body)+len(m.Name)+len(m.Data))
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind))

	switch m.Kind {
	case KindText, KindAuth, KindError:
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendString(b, m.Body)
	case KindFile:
		b = protowire.AppendTag(b, fieldName, protowire.BytesType)
		b = protowire.AppendString(b, m.Name)
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	case KindImage:
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	return b, nil
}

// UnmarshalPayload parses a payload produced by MarshalPayload.
// Unknown fields are skipped; any structural problem is a format error.
func UnmarshalPayload(b []byte) (Message, error) {
	var (
		m       Message
		sawKind bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, errs.Format("unmarshal payload", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, errs.Format("unmarshal payload", protowire.ParseError(n))
			}
			if v > 0xff {
				return Message{}, errs.Format("unmarshal payload", fmt.Errorf("unknown message kind %d", v))
			}
			m.Kind = Kind(v)
			sawKind = true
			b = b[n:]
		case (num == fieldBody || num == fieldName || num == fieldData) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, errs.Format("unmarshal payload", protowire.ParseError(n))
			}
			switch num {
			case fieldBody:
				m.Body = string(v)
			case fieldName:
				m.Name = string(v)
			case fieldData:
				if len(v) > 0 {
					m.Data = append([]byte(nil), v...)
				}
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, errs.Format("unmarshal payload", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !sawKind {
		return Message{}, errs.Format("unmarshal payload", errors.New("missing message kind"))
	}
	if err := m.Validate(); err != nil {
		return Message{}, errs.Format("unmarshal payload", err)
	}
	return m, nil
}

// Encode produces one complete frame: a 4-byte big-endian length followed by the payload.
func Encode(m Message) ([]byte, error) {
	payload, err := MarshalPayload(m)
	if err != nil {
		return nil, err
	}
	if uint64(len(payload)) > 0xffffffff {
		return nil, errs.Format("encode frame", ErrFrameTooLarge)
	}
	frame := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[headerLen:], payload)
	return frame, nil
}

// Decoder reads frames from a byte stream.
type Decoder struct {
	r   *bufio.Reader
	max uint32
}

// NewDecoder returns a decoder that rejects payloads longer than maxBytes.
// A non-positive maxBytes selects DefaultMaxFrameBytes.
func NewDecoder(r io.Reader, maxBytes int) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{r: br, max: frameLimit(maxBytes)}
}

// Decode blocks until one whole frame is available and returns its message.
// Short reads and resets are transport errors; bad prefixes and payloads are format errors.
func (d *Decoder) Decode() (Message, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		return Message{}, errs.Transport("read frame header", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return Message{}, errs.Format("read frame", ErrEmptyFrame)
	}
	if size > d.max {
		return Message{}, errs.Format("read frame", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, d.max))
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, errs.Transport("read frame payload", err)
	}
	return UnmarshalPayload(payload)
}

// Encoder writes frames to a byte stream. It is not safe for concurrent use.
type Encoder struct {
	w   io.Writer
	max uint32
}

// NewEncoder returns an encoder that refuses payloads longer than maxBytes.
func NewEncoder(w io.Writer, maxBytes int) *Encoder {
	return &Encoder{w: w, max: frameLimit(maxBytes)}
}

// Encode writes m as a single frame.
func (e *Encoder) Encode(m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	if uint32(len(frame)-headerLen) > e.max {
		return errs.Format("write frame", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame)-headerLen, e.max))
	}
	if _, err := e.w.Write(frame); err != nil {
		return errs.Transport("write frame", err)
	}
	return nil
}

func frameLimit(maxBytes int) uint32 {
	if maxBytes <= 0 || uint64(maxBytes) > 0xffffffff {
		return DefaultMaxFrameBytes
	}
	return uint32(maxBytes)
}
