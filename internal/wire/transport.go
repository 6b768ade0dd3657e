// This file defines the transport-level message kinds: FRAME and UNIT,
// plus the passthrough kinds (OPEN/CLOSE/KEEPALIVE/ACK) that the session
// lifecycle layer produces and consumes unchanged. The framing (header
// flags R/F/E, the 2-byte little-endian length prefix on streamed links)
// follows the reference transport implementation; the encoding/binary,
// zero-allocation packet-codec style follows this repository's established
// conventions.
package wire

import (
	"encoding/binary"
	"fmt"
)

// LenEncSize is the width, in bytes, of the little-endian length prefix
// placed before every transport message on a streamed link.
const LenEncSize = 2

// MaxMessageLen is the largest transport message length representable by
// the LenEncSize-byte length prefix.
const MaxMessageLen = 65535

// transport kind tags, packed into the low 3 bits of the header byte.
const (
	kindFrame     byte = 0x01
	kindUnit      byte = 0x02
	kindOpen      byte = 0x03
	kindClose     byte = 0x04
	kindKeepAlive byte = 0x05
	kindAck       byte = 0x06
)

// Header flag bits, occupying bits 3-5 of the transport header byte, just
// above the kind tag.
const (
	flagReliable byte = 1 << 3 // R
	flagFragment byte = 1 << 4 // F
	flagFinal    byte = 1 << 5 // E
)

// TransportMessage is any message kind the transmit pipeline hands to the
// link, or the receive path decodes off it.
type TransportMessage interface {
	transportKind() byte
}

// Frame is the FRAME transport message: a sequence number plus either one
// complete zenoh message or an opaque fragment payload.
type Frame struct {
	Reliable bool
	Fragment bool
	// Final marks the last fragment of a fragmented message (the E flag).
	// Meaningless when Fragment is false.
	Final bool
	SN    uint64

	// Message is set when Fragment is false: the single zenoh message this
	// frame carries.
	Message ZenohMessage

	// FragmentPayload is set when Fragment is true: the opaque byte span
	// for this fragment.
	FragmentPayload []byte
}

func (Frame) transportKind() byte { return kindFrame }

// Unit is the terminal reply transport message a queryable trigger sends
// to close a query on the wire once every matching queryable has run.
type Unit struct {
	QID         uint64
	ReplierKind uint32
	// Final marks a terminal reply, encoded with the flagFinal header bit.
	// trigger_queryables always sets this.
	Final bool
}

func (Unit) transportKind() byte { return kindUnit }

// Raw is a passthrough transport message for the session-lifecycle kinds
// (OPEN/CLOSE/KEEPALIVE/ACK) this layer does not interpret.
type Raw struct {
	Kind    byte
	Payload []byte
}

func (r Raw) transportKind() byte { return r.Kind }

// EncodeTransportMessage appends the wire encoding of msg (header byte
// plus body) to b.
func EncodeTransportMessage(msg TransportMessage, b *Buf) error {
	switch m := msg.(type) {
	case Frame:
		header := kindFrame
		if m.Reliable {
			header |= flagReliable
		}
		if m.Fragment {
			header |= flagFragment
			if m.Final {
				header |= flagFinal
			}
		}
		if err := b.WriteByte(header); err != nil {
			return err
		}
		if err := b.PutUvarint(m.SN); err != nil {
			return err
		}
		if m.Fragment {
			_, err := b.Write(m.FragmentPayload)
			return err
		}
		return EncodeZenoh(m.Message, b)

	case Unit:
		header := kindUnit
		if m.Final {
			header |= flagFinal
		}
		if err := b.WriteByte(header); err != nil {
			return err
		}
		if err := b.PutUvarint(m.QID); err != nil {
			return err
		}
		return b.PutUvarint(uint64(m.ReplierKind))

	case Raw:
		if err := b.WriteByte(m.Kind); err != nil {
			return err
		}
		_, err := b.Write(m.Payload)
		return err

	default:
		return fmt.Errorf("encode transport message: %w", ErrUnknownKind)
	}
}

// DecodeTransportMessage decodes one TransportMessage from data. data must
// contain exactly one message (the caller has already stripped any
// streamed-link length prefix and delimited the buffer accordingly).
func DecodeTransportMessage(data []byte) (TransportMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("transport message: %w", ErrTruncated)
	}
	header := data[0]
	kind := header & 0x07
	r := newReader(data[1:])

	switch kind {
	case kindFrame:
		reliable := header&flagReliable != 0
		fragment := header&flagFragment != 0
		final := header&flagFinal != 0

		sn, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("frame sn: %w", ErrTruncated)
		}
		f := Frame{Reliable: reliable, Fragment: fragment, Final: final, SN: sn}
		if fragment {
			rest := make([]byte, r.Len())
			if _, err := readFull(r, rest); err != nil {
				return nil, fmt.Errorf("frame fragment payload: %w", ErrTruncated)
			}
			f.FragmentPayload = rest
			return f, nil
		}
		msg, err := DecodeZenoh(r)
		if err != nil {
			return nil, fmt.Errorf("frame body: %w", err)
		}
		f.Message = msg
		return f, nil

	case kindUnit:
		final := header&flagFinal != 0
		qid, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("unit qid: %w", ErrTruncated)
		}
		rk, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("unit replier kind: %w", ErrTruncated)
		}
		return Unit{QID: qid, ReplierKind: uint32(rk), Final: final}, nil

	case kindOpen, kindClose, kindKeepAlive, kindAck:
		rest := make([]byte, r.Len())
		if _, err := readFull(r, rest); err != nil {
			return nil, fmt.Errorf("raw transport payload: %w", ErrTruncated)
		}
		return Raw{Kind: kind, Payload: rest}, nil

	default:
		return nil, fmt.Errorf("transport message kind %#x: %w", kind, ErrUnknownKind)
	}
}

// SplitLenPrefixed consumes one length-prefixed transport message from a
// streamed link's read buffer. It returns the message bytes, the number of
// bytes consumed (prefix + body), and ok=false if buf does not yet contain
// a complete message.
func SplitLenPrefixed(buf []byte) (msg []byte, consumed int, ok bool) {
	if len(buf) < LenEncSize {
		return nil, 0, false
	}
	n := int(binary.LittleEndian.Uint16(buf[:LenEncSize]))
	total := LenEncSize + n
	if len(buf) < total {
		return nil, 0, false
	}
	return buf[LenEncSize:total], total, true
}
