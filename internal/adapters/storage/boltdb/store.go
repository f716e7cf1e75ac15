package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketResources = []byte("resources")
	bucketRecords   = []byte("container_records")
	bucketNames     = []byte("unique_names")
	bucketMeta      = []byte("meta")

	keyPortHighWater = []byte("port_high_water")
)

var _ ports.Store = (*Store)(nil)

// Store implements ports.Store using BoltDB
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database file under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "lighthouse.db")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketResources, bucketRecords, bucketNames, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Resource operations

func (s *Store) GetResource(_ context.Context, id string) (*domain.Resource, error) {
	var res domain.Resource
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketResources).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", domain.ErrResourceNotFound, id)
		}
		return json.Unmarshal(data, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Store) ListResources(_ context.Context) ([]*domain.Resource, error) {
	var resources []*domain.Resource
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(k, v []byte) error {
			var res domain.Resource
			if err := json.Unmarshal(v, &res); err != nil {
				return err
			}
			resources = append(resources, &res)
			return nil
		})
	})
	return resources, err
}

// SaveResource inserts or replaces a resource.
func (s *Store) SaveResource(_ context.Context, res *domain.Resource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketResources).Put([]byte(res.ID), data)
	})
}

func (s *Store) DeleteResource(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResources).Delete([]byte(id))
	})
}

// Container record operations

func (s *Store) GetRecord(_ context.Context, resourceID string) (*domain.ContainerRecord, error) {
	var rec *domain.ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx, resourceID)
		return err
	})
	return rec, err
}

func (s *Store) ListRecords(_ context.Context) ([]*domain.ContainerRecord, error) {
	var records []*domain.ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var rec domain.ContainerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, &rec)
			return nil
		})
	})
	return records, err
}

// CreateRecord allocates a port and inserts the record in a single bolt
// read-write transaction; bolt admits one writer at a time.
func (s *Store) CreateRecord(_ context.Context, resourceID, uniqueName string, allocate ports.AllocateFunc) (*domain.ContainerRecord, error) {
	var rec *domain.ContainerRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		names := tx.Bucket(bucketNames)
		meta := tx.Bucket(bucketMeta)

		if records.Get([]byte(resourceID)) != nil {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRecord, resourceID)
		}
		if owner := names.Get([]byte(uniqueName)); owner != nil {
			return fmt.Errorf("%w: %s (owned by %s)", domain.ErrNameInUse, uniqueName, owner)
		}

		usage, err := portUsage(records, meta)
		if err != nil {
			return err
		}
		port, err := allocate(usage)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		rec = &domain.ContainerRecord{
			ResourceID:   resourceID,
			UniqueName:   uniqueName,
			HostPort:     port,
			NeedsRebuild: true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := putRecord(records, rec); err != nil {
			return err
		}
		if err := names.Put([]byte(uniqueName), []byte(resourceID)); err != nil {
			return err
		}
		return meta.Put(keyPortHighWater, encodePort(port))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) UpdateRecord(_ context.Context, resourceID string, fn func(*domain.ContainerRecord) error) (*domain.ContainerRecord, error) {
	var rec *domain.ContainerRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx, resourceID)
		if err != nil {
			return err
		}
		orig := *rec
		if err := fn(rec); err != nil {
			return err
		}
		// identity fields and the names bucket entry never change after creation
		rec.ResourceID = orig.ResourceID
		rec.UniqueName = orig.UniqueName
		rec.HostPort = orig.HostPort
		rec.CreatedAt = orig.CreatedAt
		rec.UpdatedAt = s.now().UTC()
		return putRecord(tx.Bucket(bucketRecords), rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteRecord removes the record and releases its unique name. The port
// high-water mark is kept so the port is never handed out again.
func (s *Store) DeleteRecord(_ context.Context, resourceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx, resourceID)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketNames).Delete([]byte(rec.UniqueName)); err != nil {
			return err
		}
		return tx.Bucket(bucketRecords).Delete([]byte(resourceID))
	})
}

func getRecord(tx *bolt.Tx, resourceID string) (*domain.ContainerRecord, error) {
	data := tx.Bucket(bucketRecords).Get([]byte(resourceID))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, resourceID)
	}
	var rec domain.ContainerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func putRecord(b *bolt.Bucket, rec *domain.ContainerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.ResourceID), data)
}

func portUsage(records, meta *bolt.Bucket) (ports.PortUsage, error) {
	var usage ports.PortUsage
	if v := meta.Get(keyPortHighWater); v != nil {
		usage.Allocated = true
		usage.HighWater = decodePort(v)
	}
	err := records.ForEach(func(k, v []byte) error {
		var rec domain.ContainerRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if !usage.Allocated || rec.HostPort > usage.HighWater {
			usage.HighWater = rec.HostPort
		}
		usage.Allocated = true
		return nil
	})
	return usage, err
}

func encodePort(port int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(port))
	return buf
}

func decodePort(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
