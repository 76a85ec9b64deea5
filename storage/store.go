package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/kerava/types"
)

// Bucket names in bbolt
var (
	bucketRecords    = []byte("records")
	bucketIdxDept    = []byte("idx_department")
	bucketIdxType    = []byte("idx_type")
	bucketIdxRegion  = []byte("idx_region")
	bucketIdxTime    = []byte("idx_time")
	bucketMeta       = []byte("meta")
	keyLastCollected = []byte("last_collected_at")
)

// Store persists resource records in bbolt with secondary indexes on
// department, resource type, and collection time. An in-memory btree
// mirrors record metadata for fast filtered scans without touching
// disk. Records survive until an explicit Prune; a resource missing
// from the latest collection simply keeps its old collected_at.
type Store struct {
	mu sync.RWMutex

	// In-memory index for fast lookups
	index *btree.BTreeG[*recordMeta]

	// On-disk storage
	db *bbolt.DB

	// Path to storage directory
	dir string
}

// recordMeta tracks a record's index fields in the btree, keyed by the
// record's primary key.
type recordMeta struct {
	Key          string
	AccountID    string
	Department   string
	ResourceType string
	Region       string
	CollectedAt  time.Time
}

// Stats summarizes store contents.
type Stats struct {
	TotalRecords int            `json:"total_records"`
	ByType       map[string]int `json:"by_type"`
	ByDepartment map[string]int `json:"by_department"`
	OldestRecord time.Time      `json:"oldest_record"`
	NewestRecord time.Time      `json:"newest_record"`
}

// New opens (or creates) a store in dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	dbPath := filepath.Join(dir, "kerava.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRecords, bucketIdxDept, bucketIdxType, bucketIdxRegion, bucketIdxTime, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{
		index: btree.NewG[*recordMeta](32, func(a, b *recordMeta) bool {
			return a.Key < b.Key
		}),
		db:  db,
		dir: dir,
	}

	if err := store.rebuildIndex(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	return store, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes records, last writer wins by collection time: a record
// older than what the store already holds for the same key is dropped.
// Secondary indexes are maintained in the same transaction as the
// record write. Returns the number of records actually written.
func (s *Store) Upsert(records []types.ResourceRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	var applied []types.ResourceRecord

	err := s.db.Update(func(tx *bbolt.Tx) error {
		recordsBucket := tx.Bucket(bucketRecords)

		for _, record := range records {
			if err := record.Validate(); err != nil {
				return fmt.Errorf("invalid record %s: %w", record.Key().String(), err)
			}

			key := []byte(record.Key().String())

			// Monotonic upsert: never let an older collection
			// overwrite a newer one.
			if existing := recordsBucket.Get(key); existing != nil {
				var current types.ResourceRecord
				if err := json.Unmarshal(existing, &current); err != nil {
					return fmt.Errorf("corrupt record %s: %w", record.Key().String(), err)
				}
				if current.CollectedAt.After(record.CollectedAt) {
					continue
				}
				if err := deleteIndexEntries(tx, current); err != nil {
					return err
				}
			}

			value, err := json.Marshal(record)
			if err != nil {
				return err
			}
			if err := recordsBucket.Put(key, value); err != nil {
				return err
			}
			if err := putIndexEntries(tx, record); err != nil {
				return err
			}

			written++
			applied = append(applied, record)
		}

		metaBucket := tx.Bucket(bucketMeta)
		return metaBucket.Put(keyLastCollected, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return 0, err
	}

	// Disk committed, mirror into the btree.
	for _, record := range applied {
		s.index.ReplaceOrInsert(metaOf(record))
	}

	return written, nil
}

// Get returns one record, or nil when absent.
func (s *Store) Get(accountID, resourceType, resourceID string) (*types.ResourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := types.RecordKey{AccountID: accountID, ResourceType: resourceType, ResourceID: resourceID}

	var record *types.ResourceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketRecords).Get([]byte(key.String()))
		if value == nil {
			return nil
		}
		record = &types.ResourceRecord{}
		return json.Unmarshal(value, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Scan returns records matching the filter, ordered by account then
// resource sort key. The btree narrows the candidate set; matched
// records are loaded in one read transaction.
func (s *Store) Scan(filter types.RecordFilter) ([]types.ResourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	s.index.Ascend(func(meta *recordMeta) bool {
		if !meta.matches(filter) {
			return true
		}
		keys = append(keys, meta.Key)
		return true
	})

	records, err := s.load(keys)
	if err != nil {
		return nil, err
	}

	// Tag filtering needs the full record, so offset and limit apply
	// after the load.
	if len(filter.Tags) > 0 {
		matched := records[:0]
		for i := range records {
			if filter.Matches(&records[i]) {
				matched = append(matched, records[i])
			}
		}
		records = matched
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return nil, nil
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// QueryByDepartment returns all records indexed under a department.
func (s *Store) QueryByDepartment(department string) ([]types.ResourceRecord, error) {
	return s.queryIndex(bucketIdxDept, department)
}

// QueryByResourceType returns all records indexed under a resource type.
func (s *Store) QueryByResourceType(resourceType string) ([]types.ResourceRecord, error) {
	return s.queryIndex(bucketIdxType, resourceType)
}

// QueryByRegion returns all records indexed under a region.
func (s *Store) QueryByRegion(region string) ([]types.ResourceRecord, error) {
	return s.queryIndex(bucketIdxRegion, region)
}

// QueryByTimeRange returns records collected within [start, end),
// oldest first.
func (s *Store) QueryByTimeRange(start, end time.Time) ([]types.ResourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketIdxTime).Cursor()
		min := timePrefix(start)
		max := timePrefix(end)

		for k, _ := c.Seek(min); k != nil && bytes.Compare(k[:timeKeyWidth], max) < 0; k, _ = c.Next() {
			keys = append(keys, string(k[timeKeyWidth+1:]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(keys)
}

// CollectedBefore returns records whose collection time is strictly
// before the cutoff, oldest first.
func (s *Store) CollectedBefore(cutoff time.Time) ([]types.ResourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketIdxTime).Cursor()
		max := timePrefix(cutoff)

		for k, _ := c.First(); k != nil && bytes.Compare(k[:timeKeyWidth], max) < 0; k, _ = c.Next() {
			keys = append(keys, string(k[timeKeyWidth+1:]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(keys)
}

// Prune deletes records collected before the cutoff, together with
// their index entries. Returns how many were deleted.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	var removed []string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		recordsBucket := tx.Bucket(bucketRecords)
		c := recordsBucket.Cursor()

		var stale []types.ResourceRecord
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var record types.ResourceRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			if record.CollectedAt.Before(cutoff) {
				stale = append(stale, record)
			}
		}

		for _, record := range stale {
			if err := recordsBucket.Delete([]byte(record.Key().String())); err != nil {
				return err
			}
			if err := deleteIndexEntries(tx, record); err != nil {
				return err
			}
			removed = append(removed, record.Key().String())
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range removed {
		s.index.Delete(&recordMeta{Key: key})
	}
	return deleted, nil
}

// Stats summarizes the stored records from the in-memory index.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		ByType:       make(map[string]int),
		ByDepartment: make(map[string]int),
	}
	s.index.Ascend(func(meta *recordMeta) bool {
		stats.TotalRecords++
		stats.ByType[meta.ResourceType]++
		stats.ByDepartment[meta.Department]++
		if stats.OldestRecord.IsZero() || meta.CollectedAt.Before(stats.OldestRecord) {
			stats.OldestRecord = meta.CollectedAt
		}
		if meta.CollectedAt.After(stats.NewestRecord) {
			stats.NewestRecord = meta.CollectedAt
		}
		return true
	})
	return stats
}

// LastCollectedAt returns when the store last accepted an upsert, or a
// zero time for a fresh store.
func (s *Store) LastCollectedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyLastCollected)
		if data != nil {
			last, _ = time.Parse(time.RFC3339Nano, string(data))
		}
		return nil
	})
	return last
}

// Helper functions

func (s *Store) queryIndex(bucket []byte, value string) ([]types.ResourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		prefix := []byte(value + "|")

		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(keys)
}

func (s *Store) load(keys []string) ([]types.ResourceRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	records := make([]types.ResourceRecord, 0, len(keys))
	err := s.db.View(func(tx *bbolt.Tx) error {
		recordsBucket := tx.Bucket(bucketRecords)
		for _, key := range keys {
			value := recordsBucket.Get([]byte(key))
			if value == nil {
				continue
			}
			var record types.ResourceRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("corrupt record %s: %w", key, err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var record types.ResourceRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			s.index.ReplaceOrInsert(metaOf(record))
			return nil
		})
	})
}

func putIndexEntries(tx *bbolt.Tx, record types.ResourceRecord) error {
	key := record.Key().String()
	if err := tx.Bucket(bucketIdxDept).Put(indexKey(record.Department, key), nil); err != nil {
		return err
	}
	if err := tx.Bucket(bucketIdxType).Put(indexKey(record.ResourceType, key), nil); err != nil {
		return err
	}
	if err := tx.Bucket(bucketIdxRegion).Put(indexKey(record.Region, key), nil); err != nil {
		return err
	}
	return tx.Bucket(bucketIdxTime).Put(timeKey(record.CollectedAt, key), nil)
}

func deleteIndexEntries(tx *bbolt.Tx, record types.ResourceRecord) error {
	key := record.Key().String()
	if err := tx.Bucket(bucketIdxDept).Delete(indexKey(record.Department, key)); err != nil {
		return err
	}
	if err := tx.Bucket(bucketIdxType).Delete(indexKey(record.ResourceType, key)); err != nil {
		return err
	}
	if err := tx.Bucket(bucketIdxRegion).Delete(indexKey(record.Region, key)); err != nil {
		return err
	}
	return tx.Bucket(bucketIdxTime).Delete(timeKey(record.CollectedAt, key))
}

func indexKey(value, recordKey string) []byte {
	return []byte(value + "|" + recordKey)
}

// timeKeyWidth is the fixed width of the zero-padded nanosecond prefix
// in time index keys, which keeps them byte-sortable.
const timeKeyWidth = 20

func timePrefix(t time.Time) []byte {
	return []byte(fmt.Sprintf("%0*d", timeKeyWidth, t.UnixNano()))
}

func timeKey(t time.Time, recordKey string) []byte {
	return append(append(timePrefix(t), '|'), recordKey...)
}

func metaOf(record types.ResourceRecord) *recordMeta {
	return &recordMeta{
		Key:          record.Key().String(),
		AccountID:    record.AccountID,
		Department:   record.Department,
		ResourceType: record.ResourceType,
		Region:       record.Region,
		CollectedAt:  record.CollectedAt,
	}
}

func (m *recordMeta) matches(filter types.RecordFilter) bool {
	if filter.AccountID != "" && m.AccountID != filter.AccountID {
		return false
	}
	if filter.ResourceType != "" && m.ResourceType != filter.ResourceType {
		return false
	}
	if filter.Department != "" && m.Department != filter.Department {
		return false
	}
	if filter.Region != "" && m.Region != filter.Region {
		return false
	}
	if !filter.CollectedAfter.IsZero() && !m.CollectedAt.After(filter.CollectedAfter) {
		return false
	}
	if !filter.CollectedBefore.IsZero() && !m.CollectedAt.Before(filter.CollectedBefore) {
		return false
	}
	return true
}
