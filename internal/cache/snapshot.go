package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"inbox-service/internal/models"
)

const snapshotPrefix = "conversations:"

// SnapshotStore persists the last good conversation list per viewer in pebble.
type SnapshotStore struct {
	db *pebble.DB
}

func Open(path string) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SnapshotStore) Save(viewerID string, convs []models.Conversation) error {
	body, err := json.Marshal(convs)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(snapshotPrefix+viewerID), body, pebble.Sync)
}

// Load returns nil without error when nothing was saved for viewerID.
func (s *SnapshotStore) Load(viewerID string) ([]models.Conversation, error) {
	v, closer, err := s.db.Get([]byte(snapshotPrefix + viewerID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var convs []models.Conversation
	if err := json.Unmarshal(v, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Forget drops the snapshot of a viewer.
func (s *SnapshotStore) Forget(viewerID string) error {
	return s.db.Delete([]byte(snapshotPrefix+viewerID), pebble.Sync)
}
