package sheet

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const historyBucket = "extractions"

// HistoryDB records extraction and save events.
type HistoryDB interface {
	// SaveRecord appends a record to the history.
	SaveRecord(record *ExtractionRecord) error

	// ListRecords returns all records, newest first.
	ListRecords() ([]*ExtractionRecord, error)

	// Close closes the database.
	Close() error
}

// BoltHistory implements HistoryDB on BoltDB.
type BoltHistory struct {
	db *bbolt.DB
}

// NewBoltHistory opens (or creates) the history database at path.
func NewBoltHistory(path string) (*BoltHistory, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(historyBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltHistory{db: db}, nil
}

// SaveRecord appends a record to the history.
func (b *BoltHistory) SaveRecord(record *ExtractionRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return bucket.Put([]byte(record.ID), data)
	})
}

// ListRecords returns all records, newest first.
func (b *BoltHistory) ListRecords() ([]*ExtractionRecord, error) {
	records := make([]*ExtractionRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var record ExtractionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Close closes the database.
func (b *BoltHistory) Close() error {
	return b.db.Close()
}
