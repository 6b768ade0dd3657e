package wire

import (
	"bytes"
	"testing"
)

// TestFrameRoundTrip covers P6: a transport message that fits round-trips
// through Encode/Decode with its fields intact, with the streamed-link
// length prefix equal to len-2.
func TestFrameRoundTrip(t *testing.T) {
	msg := Data{Key: ResKey{RID: NoRID, RName: "/s/1"}, Payload: []byte("hello")}
	frame := Frame{Reliable: true, SN: 7, Message: msg}

	b := NewBuf(256)
	b.Seek(LenEncSize) // reserve the streamed length prefix
	if err := EncodeTransportMessage(frame, b); err != nil {
		t.Fatalf("encode: %v", err)
	}
	bodyLen := b.Len() - LenEncSize
	out := b.Bytes()
	// finalize the length prefix as send_transport_message step 4 does.
	out[0] = byte(bodyLen)
	out[1] = byte(bodyLen >> 8)

	body, consumed, ok := SplitLenPrefixed(out)
	if !ok {
		t.Fatal("SplitLenPrefixed: not a complete message")
	}
	if consumed != len(out) {
		t.Fatalf("consumed %d, want %d", consumed, len(out))
	}
	if len(body) != bodyLen {
		t.Fatalf("prefix encodes length %d, body is %d bytes", bodyLen, len(body))
	}

	decoded, err := DecodeTransportMessage(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	df, ok := decoded.(Frame)
	if !ok {
		t.Fatalf("decoded %T, want Frame", decoded)
	}
	if df.SN != frame.SN || df.Reliable != frame.Reliable || df.Fragment {
		t.Fatalf("decoded frame mismatch: %+v", df)
	}
	data, ok := df.Message.(Data)
	if !ok {
		t.Fatalf("decoded message %T, want Data", df.Message)
	}
	if data.Key.RName != "/s/1" || !bytes.Equal(data.Payload, []byte("hello")) {
		t.Fatalf("decoded data mismatch: %+v", data)
	}
}

func TestUnitRoundTrip(t *testing.T) {
	u := Unit{QID: 42, ReplierKind: 0, Final: true}
	b := NewBuf(64)
	if err := EncodeTransportMessage(u, b); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeTransportMessage(b.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	du, ok := decoded.(Unit)
	if !ok {
		t.Fatalf("decoded %T, want Unit", decoded)
	}
	if du != u {
		t.Fatalf("decoded unit %+v, want %+v", du, u)
	}
}

func TestEncodeOverflow(t *testing.T) {
	b := NewBuf(4)
	msg := Data{Key: ResKey{RID: NoRID, RName: "/a"}, Payload: make([]byte, 64)}
	err := EncodeTransportMessage(Frame{SN: 1, Message: msg}, b)
	if err == nil {
		t.Fatal("expected ErrEncodeOverflow for an undersized buffer")
	}
}

func TestZenohMessageRoundTrip(t *testing.T) {
	declareIn := Declare{Kind: DeclSubscriber, RID: 5, Key: ResKey{RID: NoRID, RName: "/s/*"}}
	queryIn := Query{Key: ResKey{RID: 9, RName: "/b"}, Predicate: "x>1", QID: 99, TargetKind: 3}
	replyIn := Reply{QID: 99, ReplierKind: 0, Key: ResKey{RID: NoRID, RName: "/a/b"}, Payload: []byte("v")}

	roundTrip := func(msg ZenohMessage) ZenohMessage {
		b := NewBuf(256)
		if err := EncodeZenoh(msg, b); err != nil {
			t.Fatalf("encode %T: %v", msg, err)
		}
		got, err := DecodeZenoh(newReader(b.Bytes()))
		if err != nil {
			t.Fatalf("decode %T: %v", msg, err)
		}
		return got
	}

	if got := roundTrip(declareIn); got != declareIn {
		t.Fatalf("declare round trip: got %+v, want %+v", got, declareIn)
	}
	if got := roundTrip(queryIn); got != queryIn {
		t.Fatalf("query round trip: got %+v, want %+v", got, queryIn)
	}
	gotReply, ok := roundTrip(replyIn).(Reply)
	if !ok {
		t.Fatalf("reply round trip: wrong type")
	}
	if gotReply.QID != replyIn.QID || gotReply.ReplierKind != replyIn.ReplierKind ||
		gotReply.Key != replyIn.Key || !bytes.Equal(gotReply.Payload, replyIn.Payload) {
		t.Fatalf("reply round trip mismatch: got %+v, want %+v", gotReply, replyIn)
	}
}
