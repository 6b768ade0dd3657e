// Package link provides the physical-link abstraction the session layer
// writes encoded bytes to and reads encoded bytes from. The wire framing
// and message codecs are out of scope for this package; link only moves
// bytes, keeping the split between a link-level I/O abstraction and the
// protocol layer above it.
package link

import "net"

// Link is the physical transport a session is opened over.
//
// A streamed link (e.g. TCP) preserves byte order but not message
// boundaries, so the session layer length-prefixes every transport
// message. A datagram link (e.g. UDP) preserves message boundaries, so no
// length prefix is used.
type Link interface {
	// IsStreamed reports whether this link requires length-prefixed
	// framing (true) or preserves message boundaries on its own (false).
	IsStreamed() bool

	// Write sends b as a single unit of transmission. For a streamed link
	// this may be a short write that the caller must not reinterpret as a
	// message boundary; for a datagram link each Write is one datagram.
	Write(b []byte) (int, error)

	// Read fills b with the next available bytes (streamed) or the next
	// datagram (datagram), following the same boundary semantics as Write.
	Read(b []byte) (int, error)

	Close() error
}

// tcpLink adapts a stream-oriented net.Conn (e.g. *net.TCPConn) to Link.
type tcpLink struct {
	conn net.Conn
}

// NewTCPLink wraps conn as a streamed Link.
func NewTCPLink(conn net.Conn) Link {
	return &tcpLink{conn: conn}
}

func (l *tcpLink) IsStreamed() bool            { return true }
func (l *tcpLink) Write(b []byte) (int, error) { return l.conn.Write(b) }
func (l *tcpLink) Read(b []byte) (int, error)  { return l.conn.Read(b) }
func (l *tcpLink) Close() error                { return l.conn.Close() }

// udpLink adapts a datagram-oriented net.Conn (e.g. *net.UDPConn,
// already Dial'd to a single peer) to Link.
type udpLink struct {
	conn net.Conn
}

// NewUDPLink wraps conn as a datagram Link.
func NewUDPLink(conn net.Conn) Link {
	return &udpLink{conn: conn}
}

func (l *udpLink) IsStreamed() bool            { return false }
func (l *udpLink) Write(b []byte) (int, error) { return l.conn.Write(b) }
func (l *udpLink) Read(b []byte) (int, error)  { return l.conn.Read(b) }
func (l *udpLink) Close() error                { return l.conn.Close() }
