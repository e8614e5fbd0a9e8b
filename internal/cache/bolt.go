// Package cache keeps successful engine responses in a bbolt file so repeated
// batches are not sent to an engine twice.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketTranslations = []byte("translations")

type entry struct {
	Text     string    `json:"text"`
	StoredAt time.Time `json:"stored_at"`
}

// BoltCache is safe for concurrent use; bbolt serialises writers
type BoltCache struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// Open creates or opens the cache file. ttl <= 0 keeps entries forever.
func Open(path string, ttl time.Duration) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTranslations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}

	return &BoltCache{db: db, ttl: ttl, now: time.Now}, nil
}

func (c *BoltCache) Get(key string) (string, bool, error) {
	var e entry
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTranslations).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return "", false, fmt.Errorf("read cache entry: %w", err)
	}
	if !found || c.expired(e) {
		return "", false, nil
	}
	return e.Text, true, nil
}

func (c *BoltCache) Put(key string, value string) error {
	data, err := json.Marshal(entry{Text: value, StoredAt: c.now().UTC()})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTranslations).Put([]byte(key), data)
	})
}

// Prune deletes expired entries and returns how many were removed
func (c *BoltCache) Prune() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	removed := 0
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTranslations)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil || c.expired(e) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Len returns the number of stored entries, expired or not
func (c *BoltCache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketTranslations).Stats().KeyN
		return nil
	})
	return n, err
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}

func (c *BoltCache) expired(e entry) bool {
	return c.ttl > 0 && c.now().Sub(e.StoredAt) > c.ttl
}
