package fetch

import (
	"context"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/transports/ssh"
)

// SFTPSource serves sftp: locations over pooled SSH connections. Host keys
// are checked according to the pool's SSH configuration, not verifyCertificate.
type SFTPSource struct {
	pool   *ssh.Pool
	logger zerolog.Logger
}

// NewSFTPSource creates a source backed by pool.
func NewSFTPSource(pool *ssh.Pool, logger zerolog.Logger) *SFTPSource {
	return &SFTPSource{pool: pool, logger: logger.With().Str("source", "sftp").Logger()}
}

// Open opens the remote file named by u.
func (s *SFTPSource) Open(ctx context.Context, u *url.URL, _ bool) (io.ReadCloser, error) {
	c, err := s.pool.Client(ctx, u)
	if err != nil {
		return nil, err
	}
	return c.Open(ctx, u.Path)
}

// Walk lists regular files below the remote directory u.Path.
func (s *SFTPSource) Walk(ctx context.Context, u *url.URL) ([]string, error) {
	c, err := s.pool.Client(ctx, u)
	if err != nil {
		return nil, err
	}
	root := u.Path
	if len(root) > 1 {
		root = strings.TrimSuffix(root, "/")
	}

	var entries []string
	var walk func(dir, rel string, top bool) error
	walk = func(dir, rel string, top bool) error {
		infos, err := c.ReadDir(ctx, dir)
		if err != nil {
			if top {
				return err
			}
			s.logger.Warn().Err(err).Str("path", dir).Msg("Skipping unreadable directory")
			return nil
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
		for _, info := range infos {
			name := path.Join(rel, info.Name())
			if info.IsDir() {
				if err := walk(path.Join(dir, info.Name()), name, false); err != nil {
					return err
				}
				continue
			}
			entries = append(entries, name)
		}
		return ctx.Err()
	}
	if err := walk(root, "", true); err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the pooled connections.
func (s *SFTPSource) Close() error {
	return s.pool.Close()
}
