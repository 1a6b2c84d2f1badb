package port

import "context"

// FileStorage persists generated artifacts such as exported reports.
// Paths are relative to the storage root and use forward slashes.
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, dir string) ([]string, error)
	GetFullPath(relativePath string) string
}
