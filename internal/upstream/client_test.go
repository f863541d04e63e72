package upstream

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUDPUpstream starts a UDP listener that echoes back a fixed response
// to every datagram it receives, and returns its address.
func fakeUDPUpstream(t *testing.T, respond func(query []byte) []byte) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			resp := respond(buf[:n])
			if resp != nil {
				_, _ = conn.WriteToUDP(resp, addr)
			}
		}
	}()
	return conn.LocalAddr().String()
}

func fakeTCPUpstream(t *testing.T, respond func(query []byte) []byte) string {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				var prefix [2]byte
				if _, err := conn.Read(prefix[:]); err != nil {
					return
				}
				qlen := int(binary.BigEndian.Uint16(prefix[:]))
				query := make([]byte, qlen)
				if _, err := conn.Read(query); err != nil {
					return
				}
				resp := respond(query)
				var out [2]byte
				binary.BigEndian.PutUint16(out[:], uint16(len(resp)))
				_, _ = conn.Write(out[:])
				_, _ = conn.Write(resp)
			}()
		}
	}()
	return ln.Addr().String()
}

func minimalQuery(id uint16) []byte {
	return []byte{byte(id >> 8), byte(id), 0x01, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
}

func minimalResponse(id uint16, flags uint16) []byte {
	b := make([]byte, 12)
	b[0], b[1] = byte(id>>8), byte(id)
	b[2], b[3] = byte(flags>>8), byte(flags)
	return b
}

func TestClient_Query_UDP(t *testing.T) {
	addr := fakeUDPUpstream(t, func(query []byte) []byte {
		return minimalResponse(0x1234, 0x8180) // QR|RD|RA, no TC
	})
	c := New(addr, 2*time.Second)

	resp, err := c.Query(context.Background(), minimalQuery(0x1234), false)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), binary.BigEndian.Uint16(resp[0:2]))
}

func TestClient_Query_UDPTruncatedFallsBackToTCP(t *testing.T) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { udpConn.Close() })
	port := udpConn.LocalAddr().(*net.UDPAddr).Port

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := udpConn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_ = n
			_, _ = udpConn.WriteToUDP(minimalResponse(0x5678, 0x8380), addr) // TC bit set
		}
	}()

	var usedTCP bool
	tcpLn, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { tcpLn.Close() })
	go func() {
		for {
			conn, err := tcpLn.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				var prefix [2]byte
				if _, err := conn.Read(prefix[:]); err != nil {
					return
				}
				qlen := int(binary.BigEndian.Uint16(prefix[:]))
				query := make([]byte, qlen)
				if _, err := conn.Read(query); err != nil {
					return
				}
				usedTCP = true
				resp := minimalResponse(0x5678, 0x8180) // not truncated
				var out [2]byte
				binary.BigEndian.PutUint16(out[:], uint16(len(resp)))
				_, _ = conn.Write(out[:])
				_, _ = conn.Write(resp)
			}()
		}
	}()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	c := New(addr, 2*time.Second)
	resp, err := c.Query(context.Background(), minimalQuery(0x5678), false)
	require.NoError(t, err)
	assert.True(t, usedTCP, "truncated UDP response must trigger a TCP retry")
	assert.Equal(t, uint16(0x5678), binary.BigEndian.Uint16(resp[0:2]))
}

func TestClient_Query_ForcesTCPForLargeQuery(t *testing.T) {
	var usedTCP bool
	tcpAddr := fakeTCPUpstream(t, func(query []byte) []byte {
		usedTCP = true
		return minimalResponse(0x9999, 0x8180)
	})
	c := New(tcpAddr, 2*time.Second)

	bigQuery := make([]byte, 600)
	copy(bigQuery, minimalQuery(0x9999))

	_, err := c.Query(context.Background(), bigQuery, false)
	require.NoError(t, err)
	assert.True(t, usedTCP)
}

func TestClient_Query_TruncatedOverTCPIsError(t *testing.T) {
	tcpAddr := fakeTCPUpstream(t, func(query []byte) []byte {
		return minimalResponse(0x1, 0x8380) // TC bit set, even over TCP
	})
	c := New(tcpAddr, 2*time.Second)

	_, err := c.Query(context.Background(), minimalQuery(0x1), true)
	assert.ErrorIs(t, err, ErrTruncatedOverTCP)
}

func TestClient_Query_UpstreamUnreachable(t *testing.T) {
	c := New("127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Query(context.Background(), minimalQuery(0x1), false)
	assert.Error(t, err)
}
