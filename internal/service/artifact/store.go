package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/jwalitptl/pathology-report-api/internal/config"
	"github.com/jwalitptl/pathology-report-api/internal/model"
)

var (
	ErrWrite    = errors.New("artifact write failed")
	ErrNotFound = errors.New("artifact not found")
)

// Store persists rendered reports under a name derived from the attention code.
type Store interface {
	Save(ctx context.Context, attentionCode string, document []byte) (string, error)
	Stat(attentionCode string) (*model.ReportArtifact, error)
	FileSystem() http.FileSystem
}

type fileStore struct {
	fs  afero.Fs
	dir string
	ext string
	log zerolog.Logger
}

// StoreOption configures a file store.
type StoreOption func(*fileStore)

// WithLogger reports non-fatal filesystem problems to log.
func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *fileStore) {
		s.log = log.With().Str("component", "artifact_store").Logger()
	}
}

func NewFileStore(fs afero.Fs, cfg config.ReportsConfig, opts ...StoreOption) Store {
	s := &fileStore{fs: fs, dir: cfg.Dir, ext: cfg.Extension, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path is the deterministic location for a code's artifact.
func (s *fileStore) Path(attentionCode string) string {
	return filepath.Join(s.dir, attentionCode+s.ext)
}

// Save writes to a temp file in the report directory and renames it over the
// previous artifact, so readers never see a partial document.
func (s *fileStore) Save(ctx context.Context, attentionCode string, document []byte) (string, error) {
	if err := validateCode(attentionCode); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create report dir: %v", ErrWrite, err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+attentionCode+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", ErrWrite, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}

	path := s.Path(attentionCode)
	if err := s.fs.Rename(tmpName, path); err != nil {
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	// MemMapFs keeps the temp file's mtime across rename. The document is
	// already in place, so a failure here is only logged.
	now := time.Now()
	if err := s.fs.Chtimes(path, now, now); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("failed to update report mtime")
	}

	return path, nil
}

func (s *fileStore) Stat(attentionCode string) (*model.ReportArtifact, error) {
	if err := validateCode(attentionCode); err != nil {
		return nil, ErrNotFound
	}
	path := s.Path(attentionCode)
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &model.ReportArtifact{
		AttentionCode: attentionCode,
		Path:          path,
		Size:          info.Size(),
		GeneratedAt:   info.ModTime(),
	}, nil
}

// FileSystem exposes the report directory for static serving.
func (s *fileStore) FileSystem() http.FileSystem {
	return afero.NewHttpFs(s.fs).Dir(s.dir)
}

func validateCode(code string) error {
	if code == "" || code == "." || code == ".." || strings.ContainsAny(code, `/\`) {
		return fmt.Errorf("%w: invalid attention code %q", ErrWrite, code)
	}
	return nil
}
