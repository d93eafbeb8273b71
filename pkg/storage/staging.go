package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileTooLarge is returned by Save when the input exceeds the limit.
var ErrFileTooLarge = errors.New("file too large")

// StagedFile is an upload written to local temporary storage.
type StagedFile struct {
	Path         string
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
}

// Staging writes incoming uploads to a local directory under random names.
type Staging struct {
	basePath string
}

// NewStaging creates the base directory if missing.
func NewStaging(basePath string) (*Staging, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("staging base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Staging{basePath: basePath}, nil
}

// Save copies r into a new staged file. A limit <= 0 disables the size check.
func (s *Staging) Save(r io.Reader, originalName, mimeType string, limit int64) (StagedFile, error) {
	name, err := randomName()
	if err != nil {
		return StagedFile{}, fmt.Errorf("generate staged name: %w", err)
	}
	target := filepath.Join(s.basePath, name)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return StagedFile{}, fmt.Errorf("create staged file: %w", err)
	}
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit > 0 && n > limit {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(target)
		if errors.Is(err, ErrFileTooLarge) {
			return StagedFile{}, err
		}
		return StagedFile{}, fmt.Errorf("write staged file: %w", err)
	}
	return StagedFile{
		Path:         target,
		Filename:     name,
		OriginalName: filepath.Base(originalName),
		MimeType:     strings.TrimSpace(mimeType),
		Size:         n,
	}, nil
}

// Remove deletes a staged file. Missing files are not an error.
func (s *Staging) Remove(f StagedFile) error {
	if f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func randomName() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
