package receipt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const pendingBucketName = "pending"

// JournalOp names the mutation a journal entry guards
type JournalOp string

const (
	OpPersist JournalOp = "persist"
	OpDelete  JournalOp = "delete"
)

// JournalEntry records a mutation whose file and index writes have not all completed
type JournalEntry struct {
	Seq      uint64    `json:"-"`
	Op       JournalOp `json:"op"`
	ID       string    `json:"id"`
	FileName string    `json:"fileName"`
}

// Journal defines the recovery journal operations
type Journal interface {
	// Begin records an intent and returns its sequence number
	Begin(entry JournalEntry) (uint64, error)

	// Complete removes a finished intent
	Complete(seq uint64) error

	// Pending returns every unfinished intent in the order it was begun
	Pending() ([]JournalEntry, error)

	// Clear removes all intents
	Clear() error

	// Close closes the journal
	Close() error
}

// BoltJournal implements the Journal interface using BoltDB
type BoltJournal struct {
	db *bbolt.DB
}

// NewBoltJournal opens or creates the journal at path
func NewBoltJournal(path string) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pendingBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltJournal{db: db}, nil
}

// Begin records an intent
func (b *BoltJournal) Begin(entry JournalEntry) (uint64, error) {
	var seq uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucketName))
		var err error
		seq, err = bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating sequence: %w", err)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling journal entry: %w", err)
		}
		return bucket.Put(seqKey(seq), data)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Complete removes a finished intent
func (b *BoltJournal) Complete(seq uint64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(pendingBucketName)).Delete(seqKey(seq))
	})
}

// Pending returns every unfinished intent
func (b *BoltJournal) Pending() ([]JournalEntry, error) {
	entries := make([]JournalEntry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var entry JournalEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling journal entry: %w", err)
			}
			entry.Seq = binary.BigEndian.Uint64(k)
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Clear removes all intents
func (b *BoltJournal) Clear() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(pendingBucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(pendingBucketName))
		return err
	})
}

// Close closes the database connection
func (b *BoltJournal) Close() error {
	return b.db.Close()
}

// seqKey encodes seq big-endian so keys iterate in begin order
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
