package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Store used by tests and local runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (s *Memory) Put(_ context.Context, bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[bucket+"/"+key] = buf
	return nil
}

func (s *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("objectstore: object %s/%s not found", bucket, key)
	}
	return data, nil
}

func (s *Memory) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := bucket + "/" + key
	if _, ok := s.objects[full]; !ok {
		return fmt.Errorf("objectstore: object %s/%s not found", bucket, key)
	}
	delete(s.objects, full)
	return nil
}

func (s *Memory) List(_ context.Context, bucket, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := bucket + "/"
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, full) && strings.HasPrefix(k[len(full):], prefix) {
			keys = append(keys, k[len(full):])
		}
	}
	sort.Strings(keys)
	return keys, nil
}
