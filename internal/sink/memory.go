package sink

import (
	"context"
	"sync"
)

// MemorySink is an in-memory sink used by tests and dry runs.
type MemorySink struct {
	mu        sync.Mutex
	artifacts map[string][]byte
	// FailWrites, when set, makes every Write fail with the given error.
	FailWrites error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{artifacts: make(map[string][]byte)}
}

// Exists reports whether the artifact has been written.
func (s *MemorySink) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.artifacts[name]
	return ok, nil
}

// Write stores the artifact.
func (s *MemorySink) Write(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.artifacts[name] = buf
	return nil
}

// Get returns a stored artifact and whether it exists.
func (s *MemorySink) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.artifacts[name]
	return data, ok
}

// Names returns the stored artifact names.
func (s *MemorySink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.artifacts))
	for name := range s.artifacts {
		names = append(names, name)
	}
	return names
}

// Len returns the number of stored artifacts.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}
