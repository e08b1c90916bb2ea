package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	bolt "go.etcd.io/bbolt"
)

var bucketEvents = []byte("events")

// Journal is an append-only audit log of cluster events backed by BoltDB.
// It records history for operators; cluster state is never rebuilt from it.
type Journal struct {
	db *bolt.DB
}

// OpenJournal opens or creates the journal file at path
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEvents); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketEvents, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Write appends an event. It satisfies events.Sink.
func (j *Journal) Write(_ context.Context, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// Recent returns up to limit of the newest events, oldest first
func (j *Journal) Recent(limit int) ([]*events.Event, error) {
	if limit <= 0 {
		return []*events.Event{}, nil
	}

	var newestFirst []*events.Event
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil && len(newestFirst) < limit; k, v = c.Prev() {
			var event events.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("failed to decode event %d: %w", binary.BigEndian.Uint64(k), err)
			}
			newestFirst = append(newestFirst, &event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]*events.Event, len(newestFirst))
	for i, event := range newestFirst {
		result[len(newestFirst)-1-i] = event
	}
	return result, nil
}

// Count returns the number of journaled events
func (j *Journal) Count() (int, error) {
	var n int
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEvents).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
