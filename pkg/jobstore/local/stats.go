package local

import (
	"bytes"
	"context"
	"io"

	bolt "go.etcd.io/bbolt"
)

// WriteStatsAndLogging implements jobstore.StatsSink. Each call appends one
// opaque blob under an autoincrement key, so concurrent writers from
// independent worker processes never collide.
func (s *Store) WriteStatsAndLogging(_ context.Context, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), append([]byte(nil), blob...))
	})
}

// ReadStatsAndLogging implements jobstore.StatsSink. A blob is removed only
// after fn returns nil for it; a blob where fn errors is left in place and
// drain continues to the rest so a transient reader failure does not lose
// data that has not been visited yet.
func (s *Store) ReadStatsAndLogging(_ context.Context, fn func(io.Reader) error) (int, error) {
	var keys [][]byte
	var blobs [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStats).ForEach(func(k, v []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			blobs = append(blobs, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	var consumed [][]byte
	count := 0
	for i, blob := range blobs {
		if err := fn(bytes.NewReader(blob)); err != nil {
			continue
		}
		consumed = append(consumed, keys[i])
		count++
	}

	if len(consumed) == 0 {
		return 0, nil
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		for _, k := range consumed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

func itob(v uint64) []byte {
	return []byte{
		byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	}
}
