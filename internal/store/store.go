package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

// indexSep separates the indexed value from the record id inside index
// bucket keys. NUL never appears in the indexed fields.
const indexSep = "\x00"

const metaBucket = "meta"

// kindIndexes declares the secondary indices maintained per collection.
// The field name refers to the entity's JSON encoding.
var kindIndexes = map[types.Kind][]string{
	types.KindPatients:      {"fullName", "updatedAt"},
	types.KindDrugs:         {"name"},
	types.KindPrescriptions: {"patientId", "date"},
}

// Store is the durable local entity store. One bucket per collection plus
// one bucket per secondary index; every operation is one bbolt transaction.
type Store struct {
	db     *bolt.DB
	logger *logger.Logger
}

// Open opens (or creates) the store file and ensures every bucket exists.
func Open(path string, log *logger.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, types.NewStorageError("store_open", "cannot open local store", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return err
		}
		for _, kind := range types.AllKinds {
			if _, err := tx.CreateBucketIfNotExists([]byte(kind)); err != nil {
				return err
			}
			for _, idx := range kindIndexes[kind] {
				if _, err := tx.CreateBucketIfNotExists(indexBucketName(kind, idx)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, types.NewStorageError("store_init", "cannot initialize local store", err)
	}

	log.WithComponent("store").WithField("path", path).Info("Local store opened")
	return &Store{db: db, logger: log}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func indexBucketName(kind types.Kind, index string) []byte {
	return []byte(fmt.Sprintf("%s_idx_%s", kind, index))
}

// Put inserts or fully replaces the entity with that identity. The write is
// one atomic unit: record and index entries never diverge.
func (s *Store) Put(kind types.Kind, entity interface{}) (string, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return "", types.NewStorageError("store_encode", "cannot encode entity", err)
	}

	id, err := recordID(raw)
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(kind))
		if records == nil {
			return fmt.Errorf("missing bucket %s", kind)
		}

		if old := records.Get([]byte(id)); old != nil {
			if err := s.removeIndexEntries(tx, kind, id, old); err != nil {
				return err
			}
		}

		if err := records.Put([]byte(id), raw); err != nil {
			return err
		}
		return s.addIndexEntries(tx, kind, id, raw)
	})
	if err != nil {
		return "", types.NewStorageError("store_put", "cannot write entity", err)
	}
	return id, nil
}

// Get returns the raw entity, or nil when the id is absent.
func (s *Store) Get(kind types.Kind, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(kind))
		if records == nil {
			return fmt.Errorf("missing bucket %s", kind)
		}
		if v := records.Get([]byte(id)); v != nil {
			out = append(json.RawMessage(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, types.NewStorageError("store_get", "cannot read entity", err)
	}
	return out, nil
}

// GetAll returns every entity of a kind. Order is unspecified; callers sort
// by their own criterion.
func (s *Store) GetAll(kind types.Kind) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(kind))
		if records == nil {
			return fmt.Errorf("missing bucket %s", kind)
		}
		return records.ForEach(func(_, v []byte) error {
			out = append(out, append(json.RawMessage(nil), v...))
			return nil
		})
	})
	if err != nil {
		return nil, types.NewStorageError("store_get_all", "cannot scan collection", err)
	}
	return out, nil
}

// GetByIndex returns all entities whose indexed field equals value.
func (s *Store) GetByIndex(kind types.Kind, index, value string) ([]json.RawMessage, error) {
	if !hasIndex(kind, index) {
		return nil, types.NewStorageError("store_index", fmt.Sprintf("no index %q on %s", index, kind), nil)
	}

	var out []json.RawMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(indexBucketName(kind, index))
		records := tx.Bucket([]byte(kind))
		if idx == nil || records == nil {
			return fmt.Errorf("missing buckets for %s/%s", kind, index)
		}

		prefix := []byte(value + indexSep)
		c := idx.Cursor()
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			if v := records.Get(id); v != nil {
				out = append(out, append(json.RawMessage(nil), v...))
			}
		}
		return nil
	})
	if err != nil {
		return nil, types.NewStorageError("store_get_index", "cannot scan index", err)
	}
	return out, nil
}

// Delete removes the entity. Deleting a non-existent id is not an error.
func (s *Store) Delete(kind types.Kind, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(kind))
		if records == nil {
			return fmt.Errorf("missing bucket %s", kind)
		}

		old := records.Get([]byte(id))
		if old == nil {
			return nil
		}
		if err := s.removeIndexEntries(tx, kind, id, old); err != nil {
			return err
		}
		return records.Delete([]byte(id))
	})
	if err != nil {
		return types.NewStorageError("store_delete", "cannot delete entity", err)
	}
	return nil
}

// ReplaceAll clears the collection and refills it from items in one
// transaction. Used only by the backup import path.
func (s *Store) ReplaceAll(kind types.Kind, items []json.RawMessage) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(kind)); err != nil {
			return err
		}
		records, err := tx.CreateBucket([]byte(kind))
		if err != nil {
			return err
		}
		for _, idx := range kindIndexes[kind] {
			name := indexBucketName(kind, idx)
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		for _, raw := range items {
			id, err := recordID(raw)
			if err != nil {
				return err
			}
			if err := records.Put([]byte(id), raw); err != nil {
				return err
			}
			if err := s.addIndexEntries(tx, kind, id, raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return err
		}
		return types.NewStorageError("store_replace", "cannot replace collection", err)
	}
	return nil
}

func (s *Store) addIndexEntries(tx *bolt.Tx, kind types.Kind, id string, raw []byte) error {
	for _, index := range kindIndexes[kind] {
		value, ok := indexValue(raw, index)
		if !ok {
			continue
		}
		idx := tx.Bucket(indexBucketName(kind, index))
		if err := idx.Put([]byte(value+indexSep+id), []byte(id)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) removeIndexEntries(tx *bolt.Tx, kind types.Kind, id string, raw []byte) error {
	for _, index := range kindIndexes[kind] {
		value, ok := indexValue(raw, index)
		if !ok {
			continue
		}
		idx := tx.Bucket(indexBucketName(kind, index))
		if err := idx.Delete([]byte(value + indexSep + id)); err != nil {
			return err
		}
	}
	return nil
}

func hasIndex(kind types.Kind, index string) bool {
	for _, idx := range kindIndexes[kind] {
		if idx == index {
			return true
		}
	}
	return false
}

// recordID extracts the identity field from an encoded entity.
func recordID(raw []byte) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", types.NewStorageError("store_decode", "cannot decode entity", err)
	}
	if probe.ID == "" {
		return "", types.NewStorageError("store_no_id", "entity has no identity", nil)
	}
	return probe.ID, nil
}

// indexValue extracts the indexed field from an encoded entity as a string.
func indexValue(raw []byte, field string) (string, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	switch v := m[field].(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
