package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
)

// FileSource reads the catalog from a JSON array of products.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the JSON file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Path returns the catalog file path.
func (s *FileSource) Path() string {
	return s.path
}

func (s *FileSource) Load(_ context.Context) ([]domain.Product, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var products []domain.Product
	if err := json.NewDecoder(f).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode catalog file %s: %w", s.path, err)
	}
	return products, nil
}
