package querylog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jroosing/odns/internal/resolver"
)

var pendingBucket = []byte("pending")

// Spool is a durable, append-only staging area for resolver.LogEntry values
// between emission and the batched SQLite flush, backed by a local bbolt
// file so a burst of queries never blocks the resolver on a database write:
// Append is a single fast bbolt transaction, and the SQLite write happens
// later, off the hot path, in Consumer.Run's periodic flush.
type Spool struct {
	db *bbolt.DB
}

// OpenSpool opens (or creates) a bbolt-backed spool at path.
func OpenSpool(path string) (*Spool, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("querylog: opening spool: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pendingBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("querylog: creating spool bucket: %w", err)
	}
	return &Spool{db: db}, nil
}

// Close releases the underlying bbolt file.
func (s *Spool) Close() error {
	return s.db.Close()
}

// Append durably stores entry under the bucket's next monotonic sequence
// number.
func (s *Spool) Append(entry resolver.LogEntry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("querylog: encoding entry: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), val)
	})
}

// Drain removes and returns up to max of the oldest pending entries. A
// value that fails to decode is dropped (and still removed) rather than
// wedging the spool forever.
func (s *Spool) Drain(max int) ([]resolver.LogEntry, error) {
	var out []resolver.LogEntry
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		c := b.Cursor()

		var keys [][]byte
		for k, v := c.First(); k != nil && len(keys) < max; k, v = c.Next() {
			var entry resolver.LogEntry
			if err := json.Unmarshal(v, &entry); err == nil {
				out = append(out, entry)
			}
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Pending returns the number of entries currently staged in the spool.
func (s *Spool) Pending() int {
	var n int
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(pendingBucket).Stats().KeyN
		return nil
	})
	return n
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
