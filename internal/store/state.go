package store

import (
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/wali1264/dokteryaraflain/pkg/types"
)

// Process-wide persisted scalars. Single-writer, read-mostly; each mutation
// is persisted immediately so a crash never loses the pending marker.
const (
	keyDeviceID    = "device_id"
	keySyncPending = "sync_pending"
	keyAssetHash   = "asset_hash"
	keyAssetURL    = "asset_url"
)

// DeviceID returns the persisted device identity, minting and storing a
// random one on first call. Every remote row is scoped by this value.
func (s *Store) DeviceID() (string, error) {
	var id string
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if v := meta.Get([]byte(keyDeviceID)); v != nil {
			id = string(v)
			return nil
		}
		id = uuid.New().String()
		return meta.Put([]byte(keyDeviceID), []byte(id))
	})
	if err != nil {
		return "", types.NewStorageError("state_device_id", "cannot access device identity", err)
	}
	return id, nil
}

// SyncPending reports whether local state may be ahead of the remote mirror.
func (s *Store) SyncPending() (bool, error) {
	var pending bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(metaBucket)).Get([]byte(keySyncPending))
		pending = string(v) == "true"
		return nil
	})
	if err != nil {
		return false, types.NewStorageError("state_pending", "cannot read pending flag", err)
	}
	return pending, nil
}

// SetSyncPending persists the pending-sync marker.
func (s *Store) SetSyncPending(pending bool) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if pending {
			return meta.Put([]byte(keySyncPending), []byte("true"))
		}
		return meta.Delete([]byte(keySyncPending))
	})
	if err != nil {
		return types.NewStorageError("state_pending", "cannot write pending flag", err)
	}
	return nil
}

// AssetRef returns the content hash and public URL of the last mirrored
// letterhead image. Both empty before the first upload.
func (s *Store) AssetRef() (hash, url string, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		hash = string(meta.Get([]byte(keyAssetHash)))
		url = string(meta.Get([]byte(keyAssetURL)))
		return nil
	})
	if err != nil {
		return "", "", types.NewStorageError("state_asset", "cannot read asset reference", err)
	}
	return hash, url, nil
}

// SetAssetRef persists the last-mirrored letterhead hash and URL.
func (s *Store) SetAssetRef(hash, url string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if err := meta.Put([]byte(keyAssetHash), []byte(hash)); err != nil {
			return err
		}
		return meta.Put([]byte(keyAssetURL), []byte(url))
	})
	if err != nil {
		return types.NewStorageError("state_asset", "cannot write asset reference", err)
	}
	return nil
}
