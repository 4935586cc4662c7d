package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidName = errors.New("invalid artifact name")

// DataFile is a writable artifact handed to a report process.
type DataFile interface {
	io.Writer
	Name() string
	Sync() error
	Close() error
}

// Service manages report artifacts in a single flat directory.
type Service struct {
	dir string
}

func NewService(dir string) (*Service, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dir)
	}
	return &Service{dir: dir}, nil
}

type dataFile struct {
	*os.File
	name string
}

// Name returns the artifact name relative to the data directory.
func (f *dataFile) Name() string { return f.name }

// CreateDataOutputFile allocates a uniquely named artifact with the given extension.
func (s *Service) CreateDataOutputFile(ext string) (DataFile, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return nil, ErrInvalidName
	}
	name := fmt.Sprintf("report-%s.%s", uuid.NewString(), ext)
	f, err := s.Create(name)
	if err != nil {
		return nil, err
	}
	return &dataFile{File: f, name: name}, nil
}

// Create opens a new artifact for writing; it fails if the name is already taken.
func (s *Service) Create(name string) (*os.File, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, errors.Wrapf(err, "create artifact %s", name)
	}
	return f, nil
}

func (s *Service) Open(name string) (*os.File, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open artifact %s", name)
	}
	return f, nil
}

// Remove deletes an artifact. Removing a missing artifact is not an error.
func (s *Service) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove artifact %s", name)
	}
	return nil
}

func (s *Service) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}
