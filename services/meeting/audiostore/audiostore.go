package audiostore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xilidan/voicelink/services/meeting/entity"
	"golang.org/x/crypto/blake2b"
)

type Blob struct {
	Reference entity.Reference
	Size      int64
	Checksum  string
}

type Store interface {
	Write(ctx context.Context, meetingID, format string, data []byte) (*Blob, error)
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Path(name string) (string, error)
}

type store struct {
	root string
	log  *slog.Logger
}

func New(root string, log *slog.Logger) (Store, error) {
	if root == "" {
		return nil, fmt.Errorf("audio store root is empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audio store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio store root: %w", err)
	}
	log.Debug("audio store ready", slog.String("root", abs))

	return &store{
		root: abs,
		log:  log,
	}, nil
}

func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Write stages the bytes in a temp file and hard-links it into place. The link
// fails when the reference already exists, so an earlier blob is never replaced.
func (s *store) Write(ctx context.Context, meetingID, format string, data []byte) (*Blob, error) {
	ref, err := entity.NewReference(meetingID, format)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := s.log.With(slog.String("reference", ref.String()))
	log.Debug("writing audio blob", slog.Int("size", len(data)))

	target := filepath.Join(s.root, ref.String())
	tmp, err := os.CreateTemp(s.root, "."+ref.String()+".*.tmp")
	if err != nil {
		return nil, &entity.StorageError{Op: "write", Reference: ref, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, &entity.StorageError{Op: "write", Reference: ref, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, &entity.StorageError{Op: "sync", Reference: ref, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &entity.StorageError{Op: "write", Reference: ref, Err: err}
	}

	if err := os.Link(tmp.Name(), target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			log.Warn("audio blob already exists")
		}
		return nil, &entity.StorageError{Op: "write", Reference: ref, Err: err}
	}
	s.syncRoot()

	log.Info("audio blob written", slog.Int("size", len(data)))
	return &Blob{
		Reference: ref,
		Size:      int64(len(data)),
		Checksum:  Checksum(data),
	}, nil
}

func (s *store) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("audio %s: %w", name, entity.ErrNotFound)
		}
		return nil, 0, &entity.StorageError{Op: "open", Reference: entity.Reference(name), Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, &entity.StorageError{Op: "stat", Reference: entity.Reference(name), Err: err}
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("audio %s: %w", name, entity.ErrNotFound)
	}
	return f, info.Size(), nil
}

func (s *store) Read(ctx context.Context, name string) ([]byte, error) {
	rc, _, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &entity.StorageError{Op: "read", Reference: entity.Reference(name), Err: err}
	}
	return data, nil
}

// Path validates name before it is joined with the root.
func (s *store) Path(name string) (string, error) {
	ref, err := entity.ParseReference(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, ref.String()), nil
}

func (s *store) syncRoot() {
	dir, err := os.Open(s.root)
	if err != nil {
		return
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		s.log.Debug("failed to sync audio store root", slog.String("error", err.Error()))
	}
}
