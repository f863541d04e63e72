package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jroosing/odns/internal/accesslist"
	"github.com/jroosing/odns/internal/cache"
	"github.com/jroosing/odns/internal/dns"
	"github.com/jroosing/odns/internal/resolver"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func buildQuery(t *testing.T, name string) []byte {
	t.Helper()
	pkt := dns.Packet{}
	pkt.Header.ID = 0x1234
	pkt.Header.Flags = dns.RDFlag
	pkt.Header.QDCount = 1
	pkt.Questions = []dns.Question{{Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

func TestServerAnswersDenylistedQueryOverUDP(t *testing.T) {
	denylist := accesslist.NewDenylist()
	denylist.AddEntry(accesslist.HashDomain("blocked.example"))

	res := resolver.New(resolver.Config{
		Denylist: denylist,
		Cache:    cache.NewCache(10),
	})

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := New(ctx, addr, res, 2, 4, nil)
	require.NoError(t, err)

	go srv.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	query := buildQuery(t, "blocked.example")
	_, err = conn.Write(query)
	require.NoError(t, err)

	buf := make([]byte, 512)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	resp, err := dns.ParsePacket(buf[:n])
	require.NoError(t, err)
	require.Len(t, resp.Answers, 1)
}

func TestServerCommandChannelAddsEntry(t *testing.T) {
	denylist := accesslist.NewDenylist()
	res := resolver.New(resolver.Config{
		Denylist: denylist,
		Cache:    cache.NewCache(10),
	})

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := New(ctx, addr, res, 1, 4, nil)
	require.NoError(t, err)
	go srv.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	hash := accesslist.HashDomain("dynamic.example")
	srv.Commands() <- Command{Op: OpAdd, Cmd: resolver.Command{Kind: resolver.KindDenyDomain, Hash: hash}}
	time.Sleep(20 * time.Millisecond)

	require.True(t, denylist.Contains("dynamic.example"))
}
