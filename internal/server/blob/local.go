package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LocalStore keeps file contents on the local filesystem under a single
// directory. Keys are flat file names, never client-controlled paths.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// storageFileName builds a collision-free name preserving the original
// extension so the OS and browsers can still guess the content type.
func storageFileName(name string) string {
	return fmt.Sprintf("%d_%v%s", time.Now().Unix(), uuid.New(), filepath.Ext(name))
}

func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	key := storageFileName(name)

	f, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", 0, fmt.Errorf("creating blob file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("writing blob file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("closing blob file: %w", err)
	}

	return key, n, nil
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(key)))
	if err != nil {
		return nil, fmt.Errorf("opening blob file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Unlink(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing blob file: %w", err)
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, filepath.Base(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStore) Size(ctx context.Context, key string) (int64, error) {
	fi, err := os.Stat(filepath.Join(s.dir, filepath.Base(key)))
	if err != nil {
		return 0, fmt.Errorf("stat blob file: %w", err)
	}
	return fi.Size(), nil
}
