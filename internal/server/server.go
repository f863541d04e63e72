// Package server runs the DNS listener: a single UDP socket and a single
// TCP listener shared by a fixed pool of worker goroutines. Queries are
// read by dedicated reader/accepter goroutines, funneled through a small
// intake channel, and resolved on per-query subtasks so one slow upstream
// never stalls an accept loop.
package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/jroosing/odns/internal/pool"
	"github.com/jroosing/odns/internal/resolver"
)

// DefaultEDNSBufCapacity is the receive buffer size for a single UDP
// datagram read — large enough for the largest EDNS0 payload size a well
// behaved client advertises.
const DefaultEDNSBufCapacity = 4096

// maxTCPMessageSize is the largest message a 2-byte length prefix can
// describe (RFC 1035 §4.2.2).
const maxTCPMessageSize = 1 << 16

// intakeBufferSize sizes the channel the UDP reader and TCP accepter feed
// and the worker pool drains. It is deliberately small: a full channel
// means the workers are the bottleneck, and backpressure there is the
// right behavior (the reader/accepter simply block on the send).
const intakeBufferSize = 64

// rawQuery is one fully-read, not-yet-resolved query paired with the
// connection to answer it on. pooled marks data as borrowed from the
// server's TCP buffer pool, to be returned once the query is resolved.
type rawQuery struct {
	conn   Connection
	data   []byte
	pooled bool
}

// CommandOp identifies whether a Command adds or removes an access-list
// entry.
type CommandOp uint8

const (
	OpAdd CommandOp = iota
	OpRemove
)

// Command is a single mutation delivered over the server's command
// channel, typically published by the admin API.
type Command struct {
	Op  CommandOp
	Cmd resolver.Command
}

// Server owns the shared UDP socket and TCP listener and the worker pool
// consuming them.
type Server struct {
	udpConn  *net.UDPConn
	tcpLn    *net.TCPListener
	resolver *resolver.Resolver
	workers  int
	logger   *slog.Logger

	commandCh chan Command
	tcpBufs   *pool.Pool[[]byte]

	wg sync.WaitGroup
}

// New binds the shared UDP socket and TCP listener at addr and constructs a
// Server with workers worker goroutines (clamped to [1,10] by the caller's
// config validation). commandBuffer sizes the bounded command channel (the
// specification calls for capacity 10).
func New(ctx context.Context, addr string, res *resolver.Resolver, workers int, commandBuffer int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: resolving UDP addr %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("server: binding UDP socket %s: %w", addr, err)
	}

	tcpLn, err := listenTCP(ctx, addr)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("server: binding TCP listener %s: %w", addr, err)
	}

	if commandBuffer <= 0 {
		commandBuffer = 10
	}

	return &Server{
		udpConn:   udpConn,
		tcpLn:     tcpLn,
		resolver:  res,
		workers:   workers,
		logger:    logger,
		commandCh: make(chan Command, commandBuffer),
		tcpBufs: pool.New(func() []byte {
			return make([]byte, 0, maxTCPMessageSize)
		}),
	}, nil
}

// Commands returns the channel the admin API publishes AddListEntry /
// RemoveListEntry mutations on.
func (s *Server) Commands() chan<- Command {
	return s.commandCh
}

// Run starts the UDP reader, TCP accepter, worker pool, and command
// consumer, and blocks until ctx is canceled. It always closes both
// listeners before returning.
func (s *Server) Run(ctx context.Context) error {
	defer s.udpConn.Close()
	defer s.tcpLn.Close()

	workCh := make(chan rawQuery, intakeBufferSize)

	var ioWG sync.WaitGroup
	ioWG.Add(2)
	go func() {
		defer ioWG.Done()
		s.readUDP(ctx, workCh)
	}()
	go func() {
		defer ioWG.Done()
		s.acceptTCP(ctx, workCh)
	}()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx, workCh)
	}

	s.wg.Add(1)
	go s.runCommandConsumer(ctx)

	<-ctx.Done()

	// Unblock the reader/accepter goroutines and let in-flight subtasks
	// finish; they all select on ctx.Done() or return promptly once the
	// listeners close.
	s.udpConn.Close()
	s.tcpLn.Close()
	ioWG.Wait()
	s.wg.Wait()

	return nil
}

// readUDP is the single dedicated goroutine reading datagrams off the
// shared UDP socket. Workers never block on recv themselves: select can't
// race a blocking syscall against a channel without leaking a goroutine
// per iteration, so one reader feeds the intake channel instead.
func (s *Server) readUDP(ctx context.Context, workCh chan<- rawQuery) {
	buf := make([]byte, DefaultEDNSBufCapacity)
	for {
		n, peer, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if isClosedErr(err) {
					return
				}
				s.logger.Debug("server: UDP read error", "error", err)
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		rq := rawQuery{conn: newUDPConnection(s.udpConn, peer), data: data}

		select {
		case workCh <- rq:
		case <-ctx.Done():
			return
		}
	}
}

// acceptTCP is the single dedicated goroutine accepting TCP connections off
// the shared listener. Each accepted connection is read on its own
// goroutine so a slow or malicious client can't stall the accept loop.
func (s *Server) acceptTCP(ctx context.Context, workCh chan<- rawQuery) {
	for {
		conn, err := s.tcpLn.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if isClosedErr(err) {
					return
				}
				s.logger.Debug("server: TCP accept error", "error", err)
				continue
			}
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			tuneKeepalive(tc)
		}

		go s.readTCPQuery(ctx, conn, workCh)
	}
}

// readTCPQuery reads one length-prefixed message off conn, borrowing its
// read buffer from the server's TCP buffer pool rather than allocating a
// fresh one per connection; handleQuery returns the buffer once the query
// is resolved.
func (s *Server) readTCPQuery(ctx context.Context, conn net.Conn, workCh chan<- rawQuery) {
	var prefix [2]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		conn.Close()
		return
	}
	length := int(binary.BigEndian.Uint16(prefix[:]))

	buf := s.tcpBufs.Get()
	pooled := true
	if cap(buf) < length {
		buf = make([]byte, length)
		pooled = false
	} else {
		buf = buf[:length]
	}
	if _, err := io.ReadFull(conn, buf); err != nil {
		if pooled {
			s.tcpBufs.Put(buf[:0])
		}
		conn.Close()
		return
	}

	rq := rawQuery{conn: newTCPConnection(conn), data: buf, pooled: pooled}
	select {
	case workCh <- rq:
	case <-ctx.Done():
		if pooled {
			s.tcpBufs.Put(buf[:0])
		}
		conn.Close()
	}
}

// runWorker pulls queries off workCh and spawns a per-query subtask so a
// slow upstream forward never blocks this worker's next pull.
func (s *Server) runWorker(ctx context.Context, workCh <-chan rawQuery) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rq, ok := <-workCh:
			if !ok {
				return
			}
			s.wg.Add(1)
			go s.handleQuery(ctx, rq)
		}
	}
}

func (s *Server) handleQuery(ctx context.Context, rq rawQuery) {
	defer s.wg.Done()
	defer func() {
		if rq.conn.IsTCP() {
			rq.conn.Close()
		}
		if r := recover(); r != nil {
			s.logger.Error("server: recovered from panic handling query", "panic", r)
		}
	}()

	resp := s.resolver.Resolve(ctx, rq.data, rq.conn.ClientIP(), rq.conn.IsTCP())
	if rq.pooled {
		s.tcpBufs.Put(rq.data[:0])
	}
	if resp == nil {
		return
	}
	if err := rq.conn.Send(resp); err != nil {
		s.logger.Debug("server: failed to send response", "error", err, "client", rq.conn.ClientIP())
	}
}

// runCommandConsumer applies AddListEntry/RemoveListEntry mutations
// published on the command channel to the resolver's live access lists,
// one at a time, never blocking a query worker for more than a single
// lock-hold time.
func (s *Server) runCommandConsumer(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-s.commandCh:
			if !ok {
				return
			}
			switch cmd.Op {
			case OpAdd:
				if err := s.resolver.AddListEntry(cmd.Cmd); err != nil {
					s.logger.Warn("server: failed to add list entry", "error", err)
				}
			case OpRemove:
				s.resolver.RemoveListEntry(cmd.Cmd)
			}
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
