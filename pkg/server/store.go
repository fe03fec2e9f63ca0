package server

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"spectrad/pkg/spectro"
)

const (
	bucket      = "spectrad"
	snapshotKey = "last_configuration"
)

// Store persists the last-known instrument configuration so the service
// reproduces it across restarts.
type Store struct {
	db *bolt.DB
}

func NewStore(db *bolt.DB) (*Store, error) {
	st := Store{db: db}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveSnapshot saves the configuration snapshot as a json string in the
// database.
func (s *Store) SaveSnapshot(cfg spectro.Config) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		value, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return b.Put([]byte(snapshotKey), value)
	})
}

// LoadSnapshot retrieves the persisted configuration snapshot from the
// database.
func (s *Store) LoadSnapshot() (spectro.Config, error) {
	var cfg spectro.Config

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(snapshotKey))
		if value == nil {
			return fmt.Errorf("no configuration snapshot stored")
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}
