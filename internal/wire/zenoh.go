// This file defines the zenoh-level message kinds and their codec: the
// messages carried inside a transport FRAME body. Declare, Data, and Query
// mirror the DECLARE/DATA/QUERY payloads in the original zenoh-pico
// protocol (zenoh/session/subscription.c, queryable.c); Reply wraps a Data
// sample in a query's reply context.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMessageTooLarge indicates a streamed message whose total length
// exceeds MaxMessageLen.
var ErrMessageTooLarge = errors.New("wire: message exceeds maximum length")

// ErrTruncated indicates the decoder ran out of bytes mid-message.
var ErrTruncated = errors.New("wire: truncated message")

// ErrUnknownKind indicates an unrecognized message-kind tag byte.
var ErrUnknownKind = errors.New("wire: unknown message kind")

// NoRID is the distinguished resource-id value meaning "no alias used".
const NoRID = ^uint64(0)

// ResKey is the wire-level resource key: a numeric alias (or NoRID) paired
// with a textual suffix. Exactly one of the pure-id, pure-name, or
// id+suffix forms is meaningful per the session-level key resolver.
type ResKey struct {
	RID   uint64
	RName string
}

// HasRID reports whether this key carries a numeric alias.
func (k ResKey) HasRID() bool {
	return k.RID != NoRID
}

func (k ResKey) encode(b *Buf) error {
	var flag byte
	if k.HasRID() {
		flag = 1
	}
	if err := b.WriteByte(flag); err != nil {
		return err
	}
	if k.HasRID() {
		if err := b.PutUvarint(k.RID); err != nil {
			return err
		}
	}
	return b.PutLenPrefixed([]byte(k.RName))
}

func decodeResKey(r *bytes.Reader) (ResKey, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return ResKey{}, fmt.Errorf("reskey flag: %w", ErrTruncated)
	}
	k := ResKey{RID: NoRID}
	if flag&1 != 0 {
		rid, err := binary.ReadUvarint(r)
		if err != nil {
			return ResKey{}, fmt.Errorf("reskey rid: %w", ErrTruncated)
		}
		k.RID = rid
	}
	name, err := readLenPrefixed(r)
	if err != nil {
		return ResKey{}, fmt.Errorf("reskey rname: %w", err)
	}
	k.RName = string(name)
	return k, nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("length: %w", ErrTruncated)
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, fmt.Errorf("payload: %w", ErrTruncated)
	}
	return buf, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// DeclKind identifies the sub-form of a Declare message.
type DeclKind uint8

// Declare sub-kinds, including the reverse "forget" forms.
const (
	DeclResource DeclKind = iota
	DeclForgetResource
	DeclSubscriber
	DeclForgetSubscriber
	DeclQueryable
	DeclForgetQueryable
)

// ZenohMessage is any message kind carried inside a transport FRAME.
type ZenohMessage interface {
	zenohKind() byte
}

// zenoh message kind tags.
const (
	kindDeclare byte = 0x01
	kindData    byte = 0x02
	kindQuery   byte = 0x03
	kindReply   byte = 0x04
)

// Declare binds or unbinds a numeric id to a resource, subscriber, or
// queryable declaration.
type Declare struct {
	Kind DeclKind
	RID  uint64
	Key  ResKey
}

func (Declare) zenohKind() byte { return kindDeclare }

// Data carries one published sample: a resource key and its payload.
type Data struct {
	Key     ResKey
	Payload []byte
}

func (Data) zenohKind() byte { return kindData }

// Query carries a pull request: a resource key, an optional value
// predicate, a query id used to correlate replies, and a target-kind
// bitmask selecting which queryables should answer.
type Query struct {
	Key        ResKey
	Predicate  string
	QID        uint64
	TargetKind uint32
}

func (Query) zenohKind() byte { return kindQuery }

// Reply wraps a Data sample in a query's reply context.
type Reply struct {
	QID         uint64
	ReplierKind uint32
	Key         ResKey
	Payload     []byte
}

func (Reply) zenohKind() byte { return kindReply }

// EncodeZenoh appends the wire encoding of msg to b.
func EncodeZenoh(msg ZenohMessage, b *Buf) error {
	if err := b.WriteByte(msg.zenohKind()); err != nil {
		return err
	}
	switch m := msg.(type) {
	case Declare:
		if err := b.WriteByte(byte(m.Kind)); err != nil {
			return err
		}
		if err := b.PutUvarint(m.RID); err != nil {
			return err
		}
		return m.Key.encode(b)
	case Data:
		if err := m.Key.encode(b); err != nil {
			return err
		}
		return b.PutLenPrefixed(m.Payload)
	case Query:
		if err := m.Key.encode(b); err != nil {
			return err
		}
		if err := b.PutLenPrefixed([]byte(m.Predicate)); err != nil {
			return err
		}
		if err := b.PutUvarint(m.QID); err != nil {
			return err
		}
		return b.PutUvarint(uint64(m.TargetKind))
	case Reply:
		if err := b.PutUvarint(m.QID); err != nil {
			return err
		}
		if err := b.PutUvarint(uint64(m.ReplierKind)); err != nil {
			return err
		}
		if err := m.Key.encode(b); err != nil {
			return err
		}
		return b.PutLenPrefixed(m.Payload)
	default:
		return fmt.Errorf("encode zenoh message: %w", ErrUnknownKind)
	}
}

// DecodeZenoh reads one ZenohMessage from r.
func DecodeZenoh(r *bytes.Reader) (ZenohMessage, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("zenoh message kind: %w", ErrTruncated)
	}
	switch kind {
	case kindDeclare:
		dk, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("declare kind: %w", ErrTruncated)
		}
		rid, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("declare rid: %w", ErrTruncated)
		}
		key, err := decodeResKey(r)
		if err != nil {
			return nil, err
		}
		return Declare{Kind: DeclKind(dk), RID: rid, Key: key}, nil
	case kindData:
		key, err := decodeResKey(r)
		if err != nil {
			return nil, err
		}
		payload, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		return Data{Key: key, Payload: payload}, nil
	case kindQuery:
		key, err := decodeResKey(r)
		if err != nil {
			return nil, err
		}
		pred, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		qid, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("query qid: %w", ErrTruncated)
		}
		tk, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("query target kind: %w", ErrTruncated)
		}
		return Query{Key: key, Predicate: string(pred), QID: qid, TargetKind: uint32(tk)}, nil
	case kindReply:
		qid, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("reply qid: %w", ErrTruncated)
		}
		rk, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("reply replier kind: %w", ErrTruncated)
		}
		key, err := decodeResKey(r)
		if err != nil {
			return nil, err
		}
		payload, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		return Reply{QID: qid, ReplierKind: uint32(rk), Key: key, Payload: payload}, nil
	default:
		return nil, fmt.Errorf("zenoh message kind %#x: %w", kind, ErrUnknownKind)
	}
}

// newReader is a small helper so callers outside this package don't need to
// import bytes directly just to decode a buffer.
func newReader(p []byte) *bytes.Reader {
	return bytes.NewReader(p)
}
