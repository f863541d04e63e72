// Package upstream implements the client used to forward a query to the
// configured recursive/forwarding upstream resolver. It holds no
// persistent connections: every call opens an ephemeral socket, sends one
// query, reads one response, and tears the socket down.
package upstream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jroosing/odns/internal/dns"
	"github.com/jroosing/odns/internal/helpers"
)

// ErrTruncatedOverTCP is returned when the upstream sets the truncation bit
// on a response that was already sent over TCP — there is no further
// fallback, so the attempt fails outright.
var ErrTruncatedOverTCP = errors.New("upstream: truncated response over TCP")

const (
	// udpSizeThreshold is the encoded query size above which the client
	// forces TCP instead of attempting UDP first.
	udpSizeThreshold = 512
	recvBufferSize   = 4096
)

// Client forwards an already-encoded query to a single upstream address.
type Client struct {
	Addr    string        // host:port of the upstream resolver
	Timeout time.Duration // deadline applied to each connection attempt
}

// New creates a Client for addr (host:port) with the given per-attempt
// timeout. A zero timeout means "no deadline beyond ctx's own".
func New(addr string, timeout time.Duration) *Client {
	return &Client{Addr: addr, Timeout: timeout}
}

// Query sends queryBytes to the upstream and returns its raw response
// bytes. If queryBytes exceeds 512 bytes or forceTCP is set, it goes out
// over TCP directly; otherwise it tries UDP first and falls back to TCP
// when the UDP response carries the truncation bit. A truncated TCP
// response is an error (ErrTruncatedOverTCP) — there is nowhere left to
// fall back to.
func (c *Client) Query(ctx context.Context, queryBytes []byte, forceTCP bool) ([]byte, error) {
	if forceTCP || len(queryBytes) > udpSizeThreshold {
		return c.queryTCP(ctx, queryBytes)
	}

	resp, err := c.queryUDP(ctx, queryBytes)
	if err != nil {
		return nil, err
	}
	if dns.IsTruncated(resp) {
		return c.queryTCP(ctx, queryBytes)
	}
	return resp, nil
}

// queryUDP opens an ephemeral UDP socket bound to 0.0.0.0:0, connects it
// to c.Addr, writes queryBytes, and reads a single datagram response.
func (c *Client) queryUDP(ctx context.Context, queryBytes []byte) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("upstream: resolving %s: %w", c.Addr, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("upstream: dialing %s: %w", c.Addr, err)
	}
	defer conn.Close()

	if err := c.setDeadline(ctx, conn); err != nil {
		return nil, err
	}
	if _, err := conn.Write(queryBytes); err != nil {
		return nil, fmt.Errorf("upstream: writing to %s: %w", c.Addr, err)
	}

	buf := make([]byte, recvBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("upstream: reading from %s: %w", c.Addr, err)
	}
	return buf[:n:n], nil
}

// queryTCP opens an ephemeral TCP socket, writes the 2-byte length-prefixed
// query, and reads the length-prefixed response (RFC 1035 §4.2.2).
func (c *Client) queryTCP(ctx context.Context, queryBytes []byte) ([]byte, error) {
	d := net.Dialer{}
	dialCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	conn, err := d.DialContext(dialCtx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("upstream: dialing %s: %w", c.Addr, err)
	}
	defer conn.Close()

	if err := c.setDeadline(ctx, conn); err != nil {
		return nil, err
	}

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], helpers.ClampIntToUint16(len(queryBytes)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, fmt.Errorf("upstream: writing length prefix to %s: %w", c.Addr, err)
	}
	if _, err := conn.Write(queryBytes); err != nil {
		return nil, fmt.Errorf("upstream: writing query to %s: %w", c.Addr, err)
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, fmt.Errorf("upstream: reading length prefix from %s: %w", c.Addr, err)
	}
	respLen := int(binary.BigEndian.Uint16(prefix[:]))
	if respLen <= 0 {
		return nil, fmt.Errorf("upstream: empty TCP response from %s", c.Addr)
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, fmt.Errorf("upstream: reading response from %s: %w", c.Addr, err)
	}
	if dns.IsTruncated(resp) {
		return nil, ErrTruncatedOverTCP
	}
	return resp, nil
}

func (c *Client) setDeadline(ctx context.Context, conn net.Conn) error {
	deadline := time.Time{}
	if c.Timeout > 0 {
		deadline = time.Now().Add(c.Timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if deadline.IsZero() || ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
	}
	if deadline.IsZero() {
		return nil
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("upstream: setting deadline: %w", err)
	}
	return nil
}
