package accesslist

import (
	"net"
	"testing"

	"github.com/jroosing/odns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostsList_AddAndLookup(t *testing.T) {
	h := NewHostsList()
	hash := HashDomain("shop.local")

	require.NoError(t, h.Add(hash, Entry{Type: dns.TypeCNAME, Target: "shop.internal"}))

	records, ok := h.Lookup("shop.local")
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, dns.TypeCNAME, records[0].Type)
	assert.Equal(t, "shop.internal", records[0].Target)
}

func TestHostsList_PreservesInsertionOrder(t *testing.T) {
	h := NewHostsList()
	hash := HashDomain("multi.local")

	require.NoError(t, h.Add(hash, Entry{Type: dns.TypeA, Addr: net.IPv4(1, 1, 1, 1)}))
	require.NoError(t, h.Add(hash, Entry{Type: dns.TypeA, Addr: net.IPv4(2, 2, 2, 2)}))

	records, ok := h.Lookup("multi.local")
	require.True(t, ok)
	require.Len(t, records, 2)
	assert.True(t, records[0].Addr.Equal(net.IPv4(1, 1, 1, 1)))
	assert.True(t, records[1].Addr.Equal(net.IPv4(2, 2, 2, 2)))
}

func TestHostsList_RejectsUnsupportedKind(t *testing.T) {
	h := NewHostsList()
	err := h.Add(HashDomain("mx.local"), Entry{Type: dns.TypeMX})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestHostsList_Remove(t *testing.T) {
	h := NewHostsList()
	hash := HashDomain("a.local")
	require.NoError(t, h.Add(hash, Entry{Type: dns.TypeA, Addr: net.IPv4(1, 2, 3, 4)}))
	require.NoError(t, h.Add(hash, Entry{Type: dns.TypeCNAME, Target: "b.local"}))

	h.Remove(hash, dns.TypeA)

	records, ok := h.Lookup("a.local")
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, dns.TypeCNAME, records[0].Type)
}

func TestHostsList_WildcardLookup(t *testing.T) {
	h := NewHostsList()
	require.NoError(t, h.Add(HashWildcard("internal.test"), Entry{Type: dns.TypeA, Addr: net.IPv4(10, 0, 0, 1)}))

	records, ok := h.Lookup("svc.internal.test")
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.True(t, records[0].Addr.Equal(net.IPv4(10, 0, 0, 1)))

	_, ok = h.Lookup("unrelated.test")
	assert.False(t, ok)
}
