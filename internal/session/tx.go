// This file implements the transmit pipeline: send_transport_message and
// send_zenoh_message, including congestion control and the fragmentation
// fallback. Grounded on zenoh-pico's transport/link/tx.c
// (__unsafe_zn_prepare_wbuf/__unsafe_zn_finalize_wbuf, __zn_frame_header,
// __unsafe_zn_serialize_zenoh_fragment, _zn_send_t_msg, _zn_send_z_msg).
package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gabrik/zenoh-pico-go/internal/wire"
)

// SendTransportMessage serializes msg into the session's write buffer
// inside, optionally, a streamed-link length prefix, and hands the bytes
// to the link. On success, Transmitted becomes true.
func (s *Session) SendTransportMessage(msg wire.TransportMessage) error {
	return s.sendTransportMessage(msg)
}

func (s *Session) sendTransportMessage(msg wire.TransportMessage) error {
	s.muTx.Lock()
	defer s.muTx.Unlock()

	s.prepareWbufLocked()
	if err := wire.EncodeTransportMessage(msg, s.wbuf); err != nil {
		return fmt.Errorf("send transport message: encode: %w", err)
	}
	return s.finalizeAndSendLocked()
}

// prepareWbufLocked clears wbuf and, on a streamed link, reserves the
// LenEncSize-byte length prefix by advancing the write position past it.
// Assumes muTx is already held.
func (s *Session) prepareWbufLocked() {
	s.wbuf.Reset()
	if s.link.IsStreamed() {
		s.wbuf.Seek(wire.LenEncSize)
	}
}

// finalizeAndSendLocked writes the little-endian length prefix (streamed
// links only), hands wbuf's contents to the link, and marks transmitted
// on success. Assumes muTx is already held.
func (s *Session) finalizeAndSendLocked() error {
	out := s.wbuf.Bytes()
	if s.link.IsStreamed() {
		bodyLen := len(out) - wire.LenEncSize
		if bodyLen > wire.MaxMessageLen {
			return wire.ErrMessageTooLarge
		}
		out[0] = byte(bodyLen)
		out[1] = byte(bodyLen >> 8)
	}
	if _, err := s.link.Write(out); err != nil {
		return fmt.Errorf("%w: %v", ErrLinkWriteFailed, err)
	}
	s.transmitted.Store(true)
	return nil
}

// SendZenohMessage is the sole admission point for outbound zenoh
// messages. cong selects the congestion policy: Block acquires muTx
// unconditionally; Drop try-locks muTx and skips the send
// (CONGESTION_DROPPED, reported as success with a debug log) if it is
// already held.
func (s *Session) SendZenohMessage(msg wire.ZenohMessage, reliability Reliability, cong CongestionControl) error {
	switch cong {
	case Drop:
		if !s.muTx.TryLock() {
			slog.Debug("session: congestion drop, transmit mutex held",
				slog.String("reliability", reliabilityLabel(reliability)))
			if m := s.metrics.Load(); m != nil {
				m.IncCongestionDrops()
			}
			return nil
		}
		defer s.muTx.Unlock()
	default:
		s.muTx.Lock()
		defer s.muTx.Unlock()
	}
	return s.sendZenohMessageLocked(msg, reliability)
}

// sendZenohMessageLocked builds a non-fragment FRAME carrying msg. If msg
// does not fit wbuf, it falls back to fragmentation. Assumes muTx is
// already held.
func (s *Session) sendZenohMessageLocked(msg wire.ZenohMessage, reliability Reliability) error {
	s.prepareWbufLocked()
	sn := s.nextSNLocked(reliability)

	frame := wire.Frame{Reliable: reliability == Reliable, SN: sn, Message: msg}
	err := wire.EncodeTransportMessage(frame, s.wbuf)
	if err == nil {
		if err := s.finalizeAndSendLocked(); err != nil {
			return err
		}
		if m := s.metrics.Load(); m != nil {
			m.IncFramesTransmitted(reliabilityLabel(reliability))
		}
		return nil
	}
	if !errors.Is(err, wire.ErrEncodeOverflow) {
		return fmt.Errorf("send zenoh message: encode: %w", err)
	}
	return s.sendFragmentedLocked(msg, reliability, sn)
}

// sendFragmentedLocked encodes msg once into an expandable secondary
// buffer, then emits a sequence of fragment frames draining it. The first
// fragment reuses firstSN (already allocated by the caller); each
// subsequent fragment allocates a fresh sequence number. Assumes muTx is
// already held.
func (s *Session) sendFragmentedLocked(msg wire.ZenohMessage, reliability Reliability, firstSN uint64) error {
	fbf, err := encodeZenohExpandable(msg, s.fragBufChunk)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCannotFragment, err)
	}

	reliable := reliability == Reliable
	sn := firstSN
	cursor := 0

	for cursor < len(fbf) {
		s.prepareWbufLocked()
		headerPos := s.wbuf.Len()

		// Probe-encode assuming this is not the final fragment (F=1, E=0)
		// to learn how much space remains for the payload.
		frag := wire.Frame{Reliable: reliable, Fragment: true, Final: false, SN: sn}
		if err := wire.EncodeTransportMessage(frag, s.wbuf); err != nil {
			return fmt.Errorf("send fragment: encode header: %w", err)
		}
		spaceLeft := s.wbuf.Remaining()
		bytesLeft := len(fbf) - cursor

		final := bytesLeft <= spaceLeft
		n := spaceLeft
		if final {
			n = bytesLeft
		}

		// Rewind and re-encode with the now-known Final flag and the
		// chosen payload slice.
		s.wbuf.Seek(headerPos)
		frag.Final = final
		frag.FragmentPayload = fbf[cursor : cursor+n]
		if err := wire.EncodeTransportMessage(frag, s.wbuf); err != nil {
			return fmt.Errorf("send fragment: encode body: %w", err)
		}
		if err := s.finalizeAndSendLocked(); err != nil {
			return err
		}
		if m := s.metrics.Load(); m != nil {
			m.IncFramesTransmitted(reliabilityLabel(reliability))
			m.IncFragmentsEmitted()
		}

		cursor += n
		if !final {
			sn = s.nextSNLocked(reliability)
		}
	}
	return nil
}

// maxFragBufCap bounds how far encodeZenohExpandable will grow its
// probing buffer before giving up.
const maxFragBufCap = 1 << 24

// encodeZenohExpandable encodes msg into a buffer that starts at chunk
// bytes and doubles until the encode fits, up to maxFragBufCap. This is
// the "expandable secondary buffer" the fragmentation fallback serializes
// from; unlike wbuf it is sized for one message rather than reused.
func encodeZenohExpandable(msg wire.ZenohMessage, chunk int) ([]byte, error) {
	if chunk <= 0 {
		chunk = DefaultFragBufChunk
	}
	capacity := chunk
	for {
		b := wire.NewBuf(capacity)
		err := wire.EncodeZenoh(msg, b)
		if err == nil {
			out := make([]byte, b.Len())
			copy(out, b.Bytes())
			return out, nil
		}
		if !errors.Is(err, wire.ErrEncodeOverflow) || capacity >= maxFragBufCap {
			return nil, err
		}
		capacity *= 2
	}
}
