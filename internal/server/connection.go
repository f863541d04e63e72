package server

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Connection abstracts the transport a query arrived on, so the worker
// pool's dispatch path doesn't need to know whether it is holding a TCP
// stream or a UDP socket/peer pair. A DNS response is framed differently
// on each (length-prefixed on TCP, a single datagram on UDP) and the
// client address is read differently too (the TCP stream's own peer vs.
// the UDP recvfrom's source address).
type Connection interface {
	// Send writes an encoded DNS response back to the client.
	Send(resp []byte) error
	// ClientIP returns the remote peer's address.
	ClientIP() string
	// IsTCP reports whether this connection is a TCP stream.
	IsTCP() bool
	// Close releases any resources the connection holds. A no-op for UDP,
	// which shares the server's single socket across every query.
	Close() error
}

type tcpConnection struct {
	conn net.Conn
}

func newTCPConnection(conn net.Conn) *tcpConnection {
	return &tcpConnection{conn: conn}
}

// Send writes the 2-byte big-endian length prefix followed by resp, per
// RFC 1035 §4.2.2.
func (c *tcpConnection) Send(resp []byte) error {
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(resp)))
	if _, err := c.conn.Write(prefix[:]); err != nil {
		return fmt.Errorf("server: writing TCP length prefix: %w", err)
	}
	if _, err := c.conn.Write(resp); err != nil {
		return fmt.Errorf("server: writing TCP response: %w", err)
	}
	return nil
}

func (c *tcpConnection) ClientIP() string {
	if addr, ok := c.conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	return c.conn.RemoteAddr().String()
}

func (c *tcpConnection) IsTCP() bool  { return true }
func (c *tcpConnection) Close() error { return c.conn.Close() }

type udpConnection struct {
	socket *net.UDPConn
	peer   *net.UDPAddr
}

func newUDPConnection(socket *net.UDPConn, peer *net.UDPAddr) *udpConnection {
	return &udpConnection{socket: socket, peer: peer}
}

func (c *udpConnection) Send(resp []byte) error {
	if _, err := c.socket.WriteToUDP(resp, c.peer); err != nil {
		return fmt.Errorf("server: writing UDP response to %s: %w", c.peer, err)
	}
	return nil
}

func (c *udpConnection) ClientIP() string { return c.peer.IP.String() }
func (c *udpConnection) IsTCP() bool      { return false }
func (c *udpConnection) Close() error     { return nil }
