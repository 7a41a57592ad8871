package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/cadence/pkg/domain"
)

// Store implements ports.StateStore on the local filesystem, one JSON file
// per thread. It is meant for single-host deployments and the CLI.
type Store struct {
	BasePath string
}

// New creates a Store rooted at basePath.
// If basePath is empty, it defaults to ".cadence/threads".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".cadence", "threads")
	}
	return &Store{BasePath: basePath}
}

// Save persists the thread state atomically: write to a temp file in the same
// directory, fsync, then rename over the destination.
func (s *Store) Save(ctx context.Context, threadID string, state *domain.DialogueState) error {
	if threadID == "" {
		return fmt.Errorf("threadID cannot be empty")
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure thread directory: %w", err)
	}

	destPath := filepath.Join(s.BasePath, threadID+".json")

	data, err := domain.EncodeState(state)
	if err != nil {
		return err
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+threadID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows rename fails over an existing file; remove first. The brief
	// window without the file beats a torn write.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing thread file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// Load retrieves the thread state from its JSON file. Records written by
// older builds may lack newer sections, so decoding is lenient.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.DialogueState, error) {
	if threadID == "" {
		return nil, fmt.Errorf("threadID cannot be empty")
	}

	filePath := filepath.Join(s.BasePath, threadID+".json")
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to read thread file: %w", err)
	}
	return domain.DecodeState(data, domain.AllowPartial)
}

// Delete removes the thread file.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("threadID cannot be empty")
	}
	err := os.Remove(filepath.Join(s.BasePath, threadID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete thread file: %w", err)
	}
	return nil
}

// List returns all persisted thread IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	var threads []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			name := entry.Name()
			threads = append(threads, name[:len(name)-len(".json")])
		}
	}
	return threads, nil
}
