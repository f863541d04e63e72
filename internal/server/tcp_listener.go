package server

import (
	"context"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// tcpKeepaliveIdleSeconds is how long an accepted TCP connection can sit
// idle before the kernel starts probing it. DNS-over-TCP clients are
// expected to send their query promptly and disconnect; a short idle
// window keeps a slow or abandoned client from pinning a worker's attention
// indefinitely.
const tcpKeepaliveIdleSeconds = 30

// listenTCP creates the server's single TCP listener. The whole worker
// pool shares this one socket; keepalive is enabled at bind time so every
// accepted connection starts with probing armed.
func listenTCP(ctx context.Context, addr string) (*net.TCPListener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return ln.(*net.TCPListener), nil
}

// tuneKeepalive enables keepalive on the accepted connection and sets its
// idle time through the portable net.TCPConn methods, then sets
// TCP_KEEPIDLE directly through the platform socket option; errors from
// either step are ignored.
func tuneKeepalive(conn *net.TCPConn) {
	_ = conn.SetKeepAlive(true)
	_ = conn.SetKeepAlivePeriod(tcpKeepaliveIdleSeconds * time.Second)

	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, tcpKeepaliveIdleSeconds)
	})
}
