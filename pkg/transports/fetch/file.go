package fetch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// FileSource serves file: locations from the local filesystem.
type FileSource struct {
	logger zerolog.Logger
}

// NewFileSource creates a local filesystem source.
func NewFileSource(logger zerolog.Logger) *FileSource {
	return &FileSource{logger: logger.With().Str("source", "file").Logger()}
}

// Open opens the file named by u.
func (s *FileSource) Open(ctx context.Context, u *url.URL, _ bool) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(LocalPath(u))
}

// Walk returns every regular file below the directory named by u.
// Subdirectories that cannot be read are skipped with a warning.
func (s *FileSource) Walk(ctx context.Context, u *url.URL) ([]string, error) {
	root := LocalPath(u)
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var entries []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable directory")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LocalPath converts a file URL into a platform path.
func LocalPath(u *url.URL) string {
	p := u.Path
	if u.Opaque != "" {
		p = u.Opaque
	}
	if runtime.GOOS == "windows" && len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	if u.Host != "" && u.Host != "localhost" {
		p = "//" + u.Host + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return filepath.FromSlash(p)
}
