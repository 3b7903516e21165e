// Package memory provides an in-process metadata.Store, used by tests and by deployments that do not
// need archive records to survive a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ebogdum/archivefs/metadata"
)

// MemoryStore keeps archive records in a map guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*metadata.ArchiveRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*metadata.ArchiveRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*metadata.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *metadata.ArchiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := cloneRecord(rec)
	if existing, ok := s.records[rec.Key]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.records[rec.Key] = stored

	rec.CreatedAt = stored.CreatedAt
	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return metadata.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]*metadata.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*metadata.ArchiveRecord, 0)
	for key, rec := range s.records {
		if strings.HasPrefix(key, prefix) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneRecord(rec *metadata.ArchiveRecord) *metadata.ArchiveRecord {
	c := *rec
	if rec.Icon != nil {
		c.Icon = append([]byte(nil), rec.Icon...)
	}
	return &c
}

var _ metadata.Store = (*MemoryStore)(nil)
