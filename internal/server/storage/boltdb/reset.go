package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/prescient/internal/server/storage"
)

// MarkConsumed records reset token key as used
func (s *Storage) MarkConsumed(ctx context.Context, key string, expiresAt time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConsumed)
		if bucket.Get([]byte(key)) != nil {
			return storage.ErrTokenConsumed
		}

		// Значение: unix-время истечения, big-endian
		value := make([]byte, 8)
		binary.BigEndian.PutUint64(value, uint64(expiresAt.Unix()))

		if err := bucket.Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to mark reset token consumed: %w", err)
		}
		return nil
	})
}

// PurgeExpired removes consumed token records that expired at or before now
func (s *Storage) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	deleted := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConsumed)

		// Сначала собираем ключи: удалять во время ForEach нельзя
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if len(v) != 8 || int64(binary.BigEndian.Uint64(v)) <= now.Unix() {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("failed to delete expired reset token: %w", err)
			}
		}
		deleted = len(expired)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}
