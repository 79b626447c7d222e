package storage

import (
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketHandled = []byte("handled_messages")
)

// Journal records the IDs of consumed control messages in a local BoltDB
// file so redelivered messages are suppressed across process restarts.
// Control-message delivery is at-least-once; the journal makes handling
// effectively once per node.
type Journal struct {
	db *bolt.DB
}

// NewJournal opens (or creates) the journal under dataDir
func NewJournal(dataDir string) (*Journal, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHandled)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the journal database
func (j *Journal) Close() error {
	return j.db.Close()
}

// MarkHandled records a message ID. It reports whether this is the first
// time the ID was seen; false means the message is a redelivery.
func (j *Journal) MarkHandled(messageID string) (bool, error) {
	first := false
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHandled)
		if b.Get([]byte(messageID)) != nil {
			return nil
		}
		first = true
		return b.Put([]byte(messageID), []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return false, fmt.Errorf("failed to record message %s: %w", messageID, err)
	}
	return first, nil
}

// Handled reports whether a message ID has been consumed before
func (j *Journal) Handled(messageID string) (bool, error) {
	var seen bool
	err := j.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(bucketHandled).Get([]byte(messageID)) != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return seen, nil
}

// Compact removes entries older than the given age. Message IDs only need to
// outlive the store's redelivery window, so old entries are safe to drop.
func (j *Journal) Compact(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0

	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHandled)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ts, err := time.Parse(time.RFC3339Nano, string(v))
			if err != nil || ts.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to compact journal: %w", err)
	}
	return removed, nil
}
