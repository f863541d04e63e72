package querylog

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/odns/internal/database"
	"github.com/jroosing/odns/internal/dns"
	"github.com/jroosing/odns/internal/resolver"
)

type fakeStore struct {
	mu    sync.Mutex
	calls [][]database.QueryLogRow
}

func (f *fakeStore) InsertQueryLogBatch(_ context.Context, rows []database.QueryLogRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]database.QueryLogRow, len(rows))
	copy(batch, rows)
	f.calls = append(f.calls, batch)
	return nil
}

func (f *fakeStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

func openTestSpool(t *testing.T) *Spool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spool.bbolt")
	spool, err := OpenSpool(path)
	require.NoError(t, err)
	t.Cleanup(func() { spool.Close() })
	return spool
}

func TestConsumerFlushesOnChunkSize(t *testing.T) {
	store := &fakeStore{}
	spool := openTestSpool(t)
	ch := make(chan resolver.LogEntry, flushChunkSize+1)
	c := New(store, spool, ch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	for i := 0; i < flushChunkSize; i++ {
		ch <- resolver.LogEntry{
			Timestamp:    time.Now(),
			QName:        "example.com",
			QType:        uint16(dns.TypeA),
			ResponseCode: dns.RCodeNoError,
		}
	}

	require.Eventually(t, func() bool {
		return store.total() == flushChunkSize
	}, time.Second, time.Millisecond)
}

func TestConsumerFlushesOnClose(t *testing.T) {
	store := &fakeStore{}
	spool := openTestSpool(t)
	ch := make(chan resolver.LogEntry, 4)
	c := New(store, spool, ch, nil)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	ch <- resolver.LogEntry{Timestamp: time.Now(), QName: "a.example", QType: uint16(dns.TypeA)}
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
	assert.Equal(t, 1, store.total())
}

func TestConsumerFlushesOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	spool := openTestSpool(t)
	ch := make(chan resolver.LogEntry, 4)
	c := New(store, spool, ch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	ch <- resolver.LogEntry{Timestamp: time.Now(), QName: "b.example", QType: uint16(dns.TypeA)}
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}
	assert.Equal(t, 1, store.total())
}

func TestSpoolAppendAndDrain(t *testing.T) {
	spool := openTestSpool(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, spool.Append(resolver.LogEntry{
			Timestamp: time.Now(),
			QName:     "example.com",
			QType:     uint16(dns.TypeA),
		}))
	}
	assert.Equal(t, 3, spool.Pending())

	entries, err := spool.Drain(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, spool.Pending())

	entries, err = spool.Drain(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 0, spool.Pending())
}
