// Package protocol implements the length-prefixed wire format spoken
// between the dispatcher and a worker over a Unix-domain socket.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Type identifies the variant of a Message.
type Type uint8

const (
	// TypeIdentity carries a worker's OS process id. Must be the first
	// message on any connection.
	TypeIdentity Type = 0
	// TypeRequest carries an opaque payload from dispatcher to worker.
	TypeRequest Type = 1
	// TypeResponse carries an opaque payload from worker to dispatcher.
	TypeResponse Type = 2
)

// HeaderSize is the fixed size of a message header: one tag byte
// followed by an 8-byte big-endian size field. Fixed at 64 bits
// regardless of host word size for portability between the dispatcher
// and any worker runtime on the same host.
const HeaderSize = 9

// Message is the tagged union described in spec §3: Identity(pid),
// Request(bytes), or Response(bytes).
type Message struct {
	Type    Type
	Pid     uint64 // valid when Type == TypeIdentity
	Payload []byte // valid when Type == TypeRequest or TypeResponse
}

// Identity builds an Identity(pid) message.
func Identity(pid uint64) Message {
	return Message{Type: TypeIdentity, Pid: pid}
}

// Request builds a Request(payload) message.
func Request(payload []byte) Message {
	return Message{Type: TypeRequest, Payload: payload}
}

// Response builds a Response(payload) message.
func Response(payload []byte) Message {
	return Message{Type: TypeResponse, Payload: payload}
}

var headerPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, HeaderSize)
		return &b
	},
}

// Write encodes and writes a message to w: header then payload, then
// flushes via a single underlying Write call per section.
func Write(w io.Writer, m Message) error {
	bp := headerPool.Get().(*[]byte)
	header := *bp
	defer headerPool.Put(bp)

	header[0] = byte(m.Type)
	switch m.Type {
	case TypeIdentity:
		binary.BigEndian.PutUint64(header[1:], m.Pid)
		if _, err := w.Write(header); err != nil {
			return fmt.Errorf("writing identity header: %w", err)
		}
		return nil
	case TypeRequest, TypeResponse:
		binary.BigEndian.PutUint64(header[1:], uint64(len(m.Payload)))
	default:
		return fmt.Errorf("writing message: unknown type 0x%02x", m.Type)
	}

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing message header: %w", err)
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return fmt.Errorf("writing message payload: %w", err)
		}
	}
	return nil
}

// Read reads and decodes one message from r, using read_exact semantics
// for both the header and any payload.
func Read(r io.Reader) (Message, error) {
	bp := headerPool.Get().(*[]byte)
	header := *bp
	defer headerPool.Put(bp)

	if _, err := io.ReadFull(r, header); err != nil {
		return Message{}, fmt.Errorf("reading message header: %w", err)
	}

	tag := Type(header[0])
	size := binary.BigEndian.Uint64(header[1:])

	switch tag {
	case TypeIdentity:
		return Message{Type: TypeIdentity, Pid: size}, nil
	case TypeRequest, TypeResponse:
		payload, err := readPayload(r, size)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: tag, Payload: payload}, nil
	default:
		return Message{}, fmt.Errorf("%w: unknown type tag 0x%02x", ErrFraming, header[0])
	}
}

func readPayload(r io.Reader, size uint64) ([]byte, error) {
	if size > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload size %d exceeds %d byte limit", ErrFraming, size, maxPayloadSize)
	}
	if size == 0 {
		return nil, nil
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading message payload (%d bytes): %w", size, err)
	}
	return payload, nil
}
