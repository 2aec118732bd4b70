package blob

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var errTransient = errors.New("transient download failure")

// MemoryStore is an in-process blob store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailNextUpload makes the next Upload return this error once.
	FailNextUpload error

	// UploadHook, when set, runs after each successful Upload with the
	// object key. Tests use it to interleave concurrent callers.
	UploadHook func(key string)

	// FailDownload fails every DownloadAll for a key with the given error.
	// FailDownloadTimes fails only the first N attempts for a key.
	FailDownload      map[string]error
	FailDownloadTimes map[string]int

	// Downloads counts DownloadAll calls per key.
	Downloads map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:           make(map[string][]byte),
		FailDownload:      make(map[string]error),
		FailDownloadTimes: make(map[string]int),
		Downloads:         make(map[string]int),
	}
}

func (s *MemoryStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	if err := s.FailNextUpload; err != nil {
		s.FailNextUpload = nil
		s.mu.Unlock()
		return err
	}
	s.objects[key] = append([]byte(nil), data...)
	hook := s.UploadHook
	s.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return nil
}

func (s *MemoryStore) DownloadAll(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Downloads[key]++
	if err, ok := s.FailDownload[key]; ok {
		return nil, err
	}
	if n := s.FailDownloadTimes[key]; n > 0 {
		s.FailDownloadTimes[key] = n - 1
		return nil, errTransient
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) DeleteFolder(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

// Delete removes a single object. Test helper.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
}

// Len reports how many objects are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
