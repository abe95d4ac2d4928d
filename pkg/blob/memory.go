package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/verseforge/verseforge/pkg/types"
)

// Memory is an in-process Store used in development mode and tests
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*Object

	// Now is overridable so tests can control upload timestamps
	Now func() time.Time
}

// NewMemory creates an empty in-memory blob store
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]*Object),
		Now:     time.Now,
	}
}

func (m *Memory) Put(_ context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	sum := sha256.Sum256(body)

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(body))
	copy(cp, body)
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	m.objects[key] = &Object{
		Key:         key,
		Body:        cp,
		ContentType: contentType,
		ETag:        hex.EncodeToString(sum[:16]),
		Metadata:    meta,
		Uploaded:    m.Now().UTC(),
		Size:        int64(len(body)),
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, types.E(types.CodeNotFound, "blob %s not found", key)
	}
	return obj, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []Info
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, Info{Key: key, Size: obj.Size, Uploaded: obj.Uploaded})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Len returns the number of stored objects
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
