package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertObject inserts an enabled object row contained by containerID.
func insertObject(t *testing.T, s *Store, containerID int64, title string) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), Row{
		Type:        "object",
		OwnerID:     containerID,
		ContainerID: containerID,
		AccessLevel: 2,
		CreatedTime: 100,
		UpdatedTime: 100,
		Enabled:     true,
	}, ObjectRow{Title: title})
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	return id
}
