// Package graphstore persists graph descriptions as YAML documents in a
// directory, one file per named graph, with optimistic concurrency on
// updates.
package graphstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/graph"
)

// Document wraps a stored description with versioning metadata.
type Document struct {
	ID          string            `yaml:"id"`
	Version     int               `yaml:"version"`
	CreatedAt   time.Time         `yaml:"created_at"`
	UpdatedAt   time.Time         `yaml:"updated_at"`
	Description graph.Description `yaml:"description"`
}

// Store persists graph documents under a single directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty store directory", errors.ErrSchema),
			"Store", "NewStore", "directory validation")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "Store", "NewStore", "directory creation")
	}
	return &Store{dir: dir}, nil
}

// Create stores a new document. The identifier must be unique within the
// store.
func (s *Store) Create(id string, desc graph.Description) (*Document, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	path := s.path(id)
	if _, err := os.Stat(path); err == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: graph %q", errors.ErrDuplicateName, id),
			"Store", "Create", "uniqueness check")
	}

	now := time.Now().UTC()
	doc := &Document{
		ID:          id,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Description: desc,
	}
	if err := s.write(path, doc); err != nil {
		return nil, errors.Wrap(err, "Store", "Create", "document write")
	}
	return doc, nil
}

// Get loads a document by identifier.
func (s *Store) Get(id string) (*Document, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: graph %q", errors.ErrNotFound, id),
				"Store", "Get", "document lookup")
		}
		return nil, errors.Wrap(err, "Store", "Get", "document read")
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapFault(err, "Store", "Get", "document decoding")
	}
	return &doc, nil
}

// Update replaces a stored description. The document's version must match
// the stored one; on success the version is incremented.
func (s *Store) Update(doc *Document) error {
	if doc == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nil document", errors.ErrSchema),
			"Store", "Update", "document validation")
	}
	if err := validateID(doc.ID); err != nil {
		return err
	}
	if err := doc.Description.Validate(); err != nil {
		return err
	}

	current, err := s.Get(doc.ID)
	if err != nil {
		return errors.Wrap(err, "Store", "Update", "current version lookup")
	}
	if current.Version != doc.Version {
		return errors.WrapInvalid(
			fmt.Errorf("%w: version mismatch for graph %q: stored %d, submitted %d",
				errors.ErrSchema, doc.ID, current.Version, doc.Version),
			"Store", "Update", "optimistic concurrency check")
	}

	doc.Version++
	doc.CreatedAt = current.CreatedAt
	doc.UpdatedAt = time.Now().UTC()

	if err := s.write(s.path(doc.ID), doc); err != nil {
		return errors.Wrap(err, "Store", "Update", "document write")
	}
	return nil
}

// Delete removes a stored document.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: graph %q", errors.ErrNotFound, id),
				"Store", "Delete", "document lookup")
		}
		return errors.Wrap(err, "Store", "Delete", "document removal")
	}
	return nil
}

// List returns the identifiers of all stored documents, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "List", "directory read")
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}

// write marshals and atomically replaces the document file.
func (s *Store) write(path string, doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// validateID rejects identifiers that would escape the store directory or
// produce awkward filenames.
func validateID(id string) error {
	if id == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: empty graph identifier", errors.ErrSchema),
			"Store", "validateID", "identifier validation")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: graph identifier %q contains path separators", errors.ErrSchema, id),
			"Store", "validateID", "identifier validation")
	}
	return nil
}
