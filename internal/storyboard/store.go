package storyboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/models"
)

// ErrNotFound is returned when no document exists for an id.
var ErrNotFound = errors.New("storyboard not found")

// Store persists storyboard documents as flat JSON files, one per id,
// under a documents directory.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storyboard dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Create assigns an id and timestamps, then writes the document.
func (s *Store) Create(sb *models.Storyboard) error {
	sb.ID = uuid.New()
	now := time.Now().UTC()
	sb.CreatedAt = now
	sb.UpdatedAt = now
	return s.write(sb)
}

// Get loads one document.
func (s *Store) Get(id uuid.UUID) (*models.Storyboard, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read storyboard: %w", err)
	}

	var sb models.Storyboard
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("failed to parse storyboard %s: %w", id, err)
	}
	return &sb, nil
}

// List returns all documents, newest first.
func (s *Store) List() ([]models.Storyboard, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list storyboards: %w", err)
	}

	boards := make([]models.Storyboard, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // stray file, not a document
		}
		sb, err := s.Get(id)
		if err != nil {
			continue
		}
		boards = append(boards, *sb)
	}

	sort.Slice(boards, func(i, j int) bool {
		return boards[i].CreatedAt.After(boards[j].CreatedAt)
	})
	return boards, nil
}

// Update overwrites an existing document, preserving id and creation time.
func (s *Store) Update(id uuid.UUID, sb *models.Storyboard) error {
	existing, err := s.Get(id)
	if err != nil {
		return err
	}
	sb.ID = existing.ID
	sb.CreatedAt = existing.CreatedAt
	sb.UpdatedAt = time.Now().UTC()
	return s.write(sb)
}

// Delete removes a document.
func (s *Store) Delete(id uuid.UUID) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

func (s *Store) write(sb *models.Storyboard) error {
	data, err := json.MarshalIndent(sb, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storyboard: %w", err)
	}
	if err := os.WriteFile(s.path(sb.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write storyboard: %w", err)
	}
	return nil
}
